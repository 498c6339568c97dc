// Package sqlxrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/soma/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// withTx runs fn in a transaction, committed when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

func get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectAll(ctx context.Context, q sqlx.QueryerContext, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// exec runs b and returns the number of affected rows.
func exec(ctx context.Context, e sqlx.ExecerContext, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRows maps "no rows" to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUUID guards lookups by id; PostgreSQL rejects malformed UUIDs instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// orderBy renders orderings; nullable columns sort their NULLs first, as if they were the smallest value.
func orderBy(ordering []core.DBOrdering, nullable map[string]bool, exprs map[string]string) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col := ord.Field
		if expr, ok := exprs[col]; ok {
			col = expr
		}
		clause := core.DBOrdering{Field: col, Ascending: ord.Ascending}.String()
		if nullable[ord.Field] {
			if ord.Ascending {
				clause += " NULLS FIRST"
			} else {
				clause += " NULLS LAST"
			}
		}
		clauses = append(clauses, clause)
	}
	return clauses
}

func ilike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// dateValue binds a date as "YYYY-MM-DD".
func dateValue(d *core.Date) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func datePtr(t null.Time) *core.Date {
	if !t.Valid {
		return nil
	}
	d := core.DateOf(t.Time)
	return &d
}

// archivedCond mirrors the archived filters of plan: an explicit value, everything, or active rows only.
func archivedCond(archived *bool, includeArchived bool) sq.Sqlizer {
	switch {
	case archived != nil:
		return sq.Eq{"is_archived": *archived}
	case includeArchived:
		return nil
	default:
		return sq.Eq{"is_archived": false}
	}
}
