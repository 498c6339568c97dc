package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/gamification"
)

const statsReturning = "RETURNING user_id, xp, level, updated_at"

type statsRow struct {
	UserID    string    `db:"user_id"`
	XP        int       `db:"xp"`
	Level     int       `db:"level"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r statsRow) stats() gamification.Stats {
	return gamification.Stats{UserID: r.UserID, XP: r.XP, Level: r.Level, UpdatedAt: r.UpdatedAt.UTC()}
}

type badgeRow struct {
	UserID     string    `db:"user_id"`
	Badge      string    `db:"badge"`
	UnlockedAt time.Time `db:"unlocked_at"`
}

type gamificationRepository struct {
	db *sqlx.DB
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *sqlx.DB) *gamificationRepository {
	return &gamificationRepository{db: db}
}

func getStats(ctx context.Context, q sqlx.QueryerContext, userID string) (gamification.Stats, error) {
	var row statsRow
	err := get(ctx, q, &row, psql.Select("user_id", "xp", "level", "updated_at").From("user_stats").Where(sq.Eq{"user_id": userID}))
	if err != nil {
		if err = trapNoRows(err, nil, "finding stats"); err != nil {
			return gamification.Stats{}, err
		}
		return gamification.Stats{UserID: userID, Level: 1}, nil
	}
	return row.stats(), nil
}

func (repo *gamificationRepository) GetStats(ctx context.Context, userID string) (gamification.Stats, error) {
	return getStats(ctx, repo.db, userID)
}

func (repo *gamificationRepository) AddXPEvent(ctx context.Context, ev gamification.XPEvent) (gamification.Stats, bool, error) {
	var (
		st    gamification.Stats
		added bool
	)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		insert := psql.Insert("xp_events").
			Columns("id", "user_id", "amount", "reason", "ref_id", "created_at").
			Values(ev.ID, ev.UserID, ev.Amount, ev.Reason, ev.RefID, ev.CreatedAt.UTC()).
			Suffix("ON CONFLICT DO NOTHING")
		n, err := exec(ctx, tx, insert)
		if err != nil {
			return errors.Wrap(err, "inserting XP event")
		}
		if n == 0 {
			st, err = getStats(ctx, tx, ev.UserID)
			return err
		}

		// XP never drops below zero; the level is left for the caller to settle
		upsert := psql.Insert("user_stats").
			Columns("user_id", "xp", "level", "updated_at").
			Values(ev.UserID, sq.Expr("GREATEST(?::bigint, 0)", ev.Amount), 1, core.NowFunc().UTC()).
			Suffix("ON CONFLICT (user_id) DO UPDATE SET xp = GREATEST(user_stats.xp + ?::bigint, 0), updated_at = EXCLUDED.updated_at", ev.Amount).
			Suffix(statsReturning)
		var row statsRow
		if err = get(ctx, tx, &row, upsert); err != nil {
			return errors.Wrap(err, "adding XP")
		}
		st, added = row.stats(), true
		return nil
	})
	if err != nil {
		return gamification.Stats{}, false, err
	}
	return st, added, nil
}

func (repo *gamificationRepository) SetLevel(ctx context.Context, userID string, level int) error {
	q := psql.Insert("user_stats").
		Columns("user_id", "xp", "level", "updated_at").
		Values(userID, 0, level, core.NowFunc().UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level, updated_at = EXCLUDED.updated_at")
	_, err := exec(ctx, repo.db, q)
	return errors.Wrap(err, "setting level")
}

func (repo *gamificationRepository) SaveStats(ctx context.Context, st gamification.Stats) error {
	q := psql.Insert("user_stats").
		Columns("user_id", "xp", "level", "updated_at").
		Values(st.UserID, st.XP, st.Level, st.UpdatedAt.UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET xp = EXCLUDED.xp, level = EXCLUDED.level, updated_at = EXCLUDED.updated_at")
	_, err := exec(ctx, repo.db, q)
	return errors.Wrap(err, "saving stats")
}

func (repo *gamificationRepository) SumXP(ctx context.Context, userID string) (int, error) {
	var sum int
	q := psql.Select("COALESCE(SUM(amount), 0)").From("xp_events").Where(sq.Eq{"user_id": userID})
	if err := get(ctx, repo.db, &sum, q); err != nil {
		return 0, errors.Wrap(err, "summing XP")
	}
	return sum, nil
}

func (repo *gamificationRepository) ListBadges(ctx context.Context, userID string) ([]gamification.UnlockedBadge, error) {
	var rows []badgeRow
	q := psql.Select("user_id", "badge", "unlocked_at").From("user_badges").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("unlocked_at ASC", "badge ASC")
	if err := selectAll(ctx, repo.db, &rows, q); err != nil {
		return nil, errors.Wrap(err, "listing badges")
	}
	badges := make([]gamification.UnlockedBadge, 0, len(rows))
	for _, r := range rows {
		badges = append(badges, gamification.UnlockedBadge{UserID: r.UserID, Badge: r.Badge, UnlockedAt: r.UnlockedAt.UTC()})
	}
	return badges, nil
}

func (repo *gamificationRepository) UnlockBadge(ctx context.Context, b gamification.UnlockedBadge) (bool, error) {
	q := psql.Insert("user_badges").
		Columns("user_id", "badge", "unlocked_at").
		Values(b.UserID, b.Badge, b.UnlockedAt.UTC()).
		Suffix("ON CONFLICT DO NOTHING")
	n, err := exec(ctx, repo.db, q)
	if err != nil {
		return false, errors.Wrap(err, "unlocking badge")
	}
	return n > 0, nil
}
