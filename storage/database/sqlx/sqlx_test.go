package sqlxrepos

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
)

// newMock returns a sqlx handle on a sqlmock connection, checked for unmet expectations at cleanup.
func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func quote(s string) string {
	return regexp.QuoteMeta(s)
}

func TestOrderBy(t *testing.T) {
	ordering := []core.DBOrdering{
		{Field: "priority", Ascending: false},
		{Field: "due_date", Ascending: true},
		{Field: "completed_at", Ascending: false},
		{Field: "title", Ascending: true},
	}
	got := orderBy(ordering, nullableTaskColumns, taskOrderExprs)
	assert.Equal(t, []string{
		taskOrderExprs["priority"] + " DESC",
		"due_date ASC NULLS FIRST",
		"completed_at DESC NULLS LAST",
		"title ASC",
	}, got)
	assert.Empty(t, orderBy(nil, nil, nil))
}

func TestIlike(t *testing.T) {
	assert.Equal(t, "%physics%", ilike("physics"))
	assert.Equal(t, `%100\% \_done\\%`, ilike(`100% _done\`))
}

func TestArchivedCond(t *testing.T) {
	yes := true
	assert.Equal(t, sq.Eq{"is_archived": true}, archivedCond(&yes, false))
	assert.Nil(t, archivedCond(nil, true))
	assert.Equal(t, sq.Eq{"is_archived": false}, archivedCond(nil, false))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, isUUID("0b8f4a44-8c1d-4b5e-9f57-3c1a6a0e2d11"))
	assert.False(t, isUUID("nope"))
	assert.False(t, isUUID(""))
}
