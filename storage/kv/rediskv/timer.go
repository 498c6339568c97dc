package rediskv

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/soma/core/timer"
)

// timers are stored as JSON under timer:<user id>; the timers set indexes their owners for the sweeper.

func (s *Store) timerKey(userID string) string {
	return s.key("timer", userID)
}

func (s *Store) GetTimer(ctx context.Context, userID string) (*timer.State, error) {
	data, err := s.client.Get(ctx, s.timerKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	st := new(timer.State)
	if err = json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrap(err, "decoding timer")
	}
	return st, nil
}

func (s *Store) SaveTimer(ctx context.Context, st *timer.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "encoding timer")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.timerKey(st.UserID), data, 0)
		pipe.SAdd(ctx, s.key("timers"), st.UserID)
		return nil
	})
	return err
}

func (s *Store) DeleteTimer(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.timerKey(userID))
		pipe.SRem(ctx, s.key("timers"), userID)
		return nil
	})
	return err
}

func (s *Store) TimerUsers(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key("timers")).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
