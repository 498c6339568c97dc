package inmemdb

import (
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/user"
)

// DB is an in-process store implementing every repository. A single lock makes multi-row writes atomic.
type DB struct {
	mu       sync.RWMutex
	users    map[string]user.User
	nodes    map[string]plan.Node
	tasks    map[string]plan.Task
	sessions map[string]session.Session
	stats    map[string]gamification.Stats
	xpEvents []gamification.XPEvent
	badges   map[string]map[string]gamification.UnlockedBadge // user id: badge key
}

func Open() *DB {
	return &DB{
		users:    make(map[string]user.User),
		nodes:    make(map[string]plan.Node),
		tasks:    make(map[string]plan.Task),
		sessions: make(map[string]session.Session),
		stats:    make(map[string]gamification.Stats),
		badges:   make(map[string]map[string]gamification.UnlockedBadge),
	}
}

var (
	mostRecentFirst = []core.DBOrdering{{Field: "started_at"}, {Field: "id"}}
	oldestFirst     = []core.DBOrdering{{Field: "unlocked_at", Ascending: true}, {Field: "id", Ascending: true}}
)

// sortBy orders items following `ordering`; fields are resolved with `value`.
func sortBy[T any](items []T, ordering []core.DBOrdering, value func(item T, field string) interface{}) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(value(items[i], ord.Field), value(items[j], ord.Field))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(av), strings.ToLower(b.(string)))
	case int:
		bv := b.(int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	case bool:
		bv := b.(bool)
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		}
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}
