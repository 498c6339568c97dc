package rediskv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/soma/core/gamification"
)

func (s *Store) celebrationsKey(userID string) string {
	return s.key("celebrations", userID)
}

// PushCelebration appends c and trims the list to the newest MaxCelebrations entries.
func (s *Store) PushCelebration(ctx context.Context, userID string, c gamification.Celebration) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding celebration")
	}
	key := s.celebrationsKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -gamification.MaxCelebrations, -1)
		return nil
	})
	return err
}

func (s *Store) PendingCelebrations(ctx context.Context, userID string) ([]gamification.Celebration, error) {
	items, err := s.client.LRange(ctx, s.celebrationsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeCelebrations(items)
}

func decodeCelebrations(items []string) ([]gamification.Celebration, error) {
	celebs := make([]gamification.Celebration, 0, len(items))
	for _, item := range items {
		var c gamification.Celebration
		if err := json.Unmarshal([]byte(item), &c); err != nil {
			return nil, errors.Wrap(err, "decoding celebration")
		}
		celebs = append(celebs, c)
	}
	return celebs, nil
}

// AckCelebrations rewrites the list without the acknowledged entries. The list is watched so
// celebrations pushed meanwhile are never lost.
func (s *Store) AckCelebrations(ctx context.Context, userID string, ids ...string) error {
	key := s.celebrationsKey(userID)
	if len(ids) == 0 {
		return s.client.Del(ctx, key).Err()
	}
	acked := make(map[string]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			items, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			var keep []interface{}
			for _, item := range items {
				var c gamification.Celebration
				if err := json.Unmarshal([]byte(item), &c); err == nil && acked[c.ID] {
					continue
				}
				keep = append(keep, item)
			}
			if len(keep) == len(items) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				if len(keep) > 0 {
					pipe.RPush(ctx, key, keep...)
				}
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.New("acknowledging celebrations: too much contention")
}
