// Package memkv is the in-process counterpart of rediskv, used when no redis url is configured.
package memkv

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/timer"
)

type window struct {
	hits    int
	expires time.Time
}

type Store struct {
	mu           sync.Mutex
	timers       map[string][]byte // JSON, so callers never share state
	celebrations map[string][]gamification.Celebration
	windows      map[string]window
	nextSweep    time.Time
}

// windowSweepEvery bounds how often Allow drops expired windows.
const windowSweepEvery = time.Minute

var (
	// interface compliance checks
	_ timer.StateStore              = (*Store)(nil)
	_ gamification.CelebrationQueue = (*Store)(nil)
	_ core.RateLimiter              = (*Store)(nil)
)

func New() *Store {
	return &Store{
		timers:       make(map[string][]byte),
		celebrations: make(map[string][]gamification.Celebration),
		windows:      make(map[string]window),
	}
}

func (s *Store) GetTimer(_ context.Context, userID string) (*timer.State, error) {
	s.mu.Lock()
	data, ok := s.timers[userID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	st := new(timer.State)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrap(err, "decoding timer")
	}
	return st, nil
}

func (s *Store) SaveTimer(_ context.Context, st *timer.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encoding timer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[st.UserID] = data
	return nil
}

func (s *Store) DeleteTimer(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, userID)
	return nil
}

func (s *Store) TimerUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) PushCelebration(_ context.Context, userID string, c gamification.Celebration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	celebs := append(s.celebrations[userID], c)
	if n := len(celebs); n > gamification.MaxCelebrations {
		celebs = append([]gamification.Celebration(nil), celebs[n-gamification.MaxCelebrations:]...)
	}
	s.celebrations[userID] = celebs
	return nil
}

func (s *Store) PendingCelebrations(_ context.Context, userID string) ([]gamification.Celebration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gamification.Celebration{}, s.celebrations[userID]...), nil
}

func (s *Store) AckCelebrations(_ context.Context, userID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		delete(s.celebrations, userID)
		return nil
	}
	acked := make(map[string]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}
	var keep []gamification.Celebration
	for _, c := range s.celebrations[userID] {
		if !acked[c.ID] {
			keep = append(keep, c)
		}
	}
	s.celebrations[userID] = keep
	return nil
}

func (s *Store) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := core.NowFunc()
	if !now.Before(s.nextSweep) {
		for k, w := range s.windows {
			if !now.Before(w.expires) {
				delete(s.windows, k)
			}
		}
		s.nextSweep = now.Add(windowSweepEvery)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.expires) {
		w = window{expires: now.Add(win)}
	}
	w.hits++
	s.windows[key] = w
	if w.hits <= limit {
		return true, 0, nil
	}
	return false, w.expires.Sub(now), nil
}
