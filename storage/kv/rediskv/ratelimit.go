package rediskv

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// fixedWindow counts a hit and starts the window on the first one. Returns {hits, ms left}.
var fixedWindow = redis.NewScript(`
local hits = redis.call('INCR', KEYS[1])
if hits == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {hits, redis.call('PTTL', KEYS[1])}
`)

func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := fixedWindow.Run(ctx, s.client, []string{s.key("ratelimit", key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, errors.Wrap(err, "counting hit")
	}
	if len(res) != 2 {
		return false, 0, errors.New("unexpected rate limit script result")
	}
	hits, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if hits <= int64(limit) {
		return true, 0, nil
	}
	if ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}
