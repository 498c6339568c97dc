package inmemdb

import (
	"context"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
)

type gamificationRepository struct {
	db *DB
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *DB) *gamificationRepository {
	return &gamificationRepository{db: db}
}

// statsOf must be called with the lock held.
func (repo *gamificationRepository) statsOf(userID string) gamification.Stats {
	if st, ok := repo.db.stats[userID]; ok {
		return st
	}
	return gamification.Stats{UserID: userID, Level: 1}
}

func (repo *gamificationRepository) GetStats(_ context.Context, userID string) (gamification.Stats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.statsOf(userID), nil
}

func (repo *gamificationRepository) AddXPEvent(_ context.Context, ev gamification.XPEvent) (gamification.Stats, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	st := repo.statsOf(ev.UserID)
	if ev.IsUnique() {
		for _, e := range repo.db.xpEvents {
			if e.UserID == ev.UserID && e.Reason == ev.Reason && e.RefID == ev.RefID {
				return st, false, nil
			}
		}
	}
	repo.db.xpEvents = append(repo.db.xpEvents, ev)

	st.XP += ev.Amount
	if st.XP < 0 {
		st.XP = 0
	}
	st.UpdatedAt = core.NowFunc().UTC()
	repo.db.stats[ev.UserID] = st
	return st, true, nil
}

func (repo *gamificationRepository) SetLevel(_ context.Context, userID string, level int) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	st := repo.statsOf(userID)
	st.Level = level
	st.UpdatedAt = core.NowFunc().UTC()
	repo.db.stats[userID] = st
	return nil
}

func (repo *gamificationRepository) SaveStats(_ context.Context, st gamification.Stats) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.stats[st.UserID] = st
	return nil
}

func (repo *gamificationRepository) SumXP(_ context.Context, userID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sum int
	for _, e := range repo.db.xpEvents {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (repo *gamificationRepository) ListBadges(_ context.Context, userID string) ([]gamification.UnlockedBadge, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	badges := make([]gamification.UnlockedBadge, 0, len(repo.db.badges[userID]))
	for _, b := range repo.db.badges[userID] {
		badges = append(badges, b)
	}
	sortBy(badges, oldestFirst, func(b gamification.UnlockedBadge, field string) interface{} {
		if field == "id" {
			return b.Badge
		}
		return timeKey(b.UnlockedAt)
	})
	return badges, nil
}

func (repo *gamificationRepository) UnlockBadge(_ context.Context, b gamification.UnlockedBadge) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	userBadges, ok := repo.db.badges[b.UserID]
	if !ok {
		userBadges = make(map[string]gamification.UnlockedBadge)
		repo.db.badges[b.UserID] = userBadges
	}
	if _, exists := userBadges[b.Badge]; exists {
		return false, nil
	}
	userBadges[b.Badge] = b
	return true, nil
}
