package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
)

func TestSplitByDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := func(day, h, m int) time.Time {
		return time.Date(2026, 3, day, h, m, 0, 0, loc)
	}

	t.Run("single day", func(t *testing.T) {
		parts := SplitByDay([]Segment{
			{Start: at(2, 9, 0), End: at(2, 9, 25)},
			{Start: at(2, 9, 30), End: at(2, 9, 55)},
		}, loc)
		require.Len(t, parts, 1)
		assert.Equal(t, core.NewDate(2026, 3, 2), parts[0].Day)
		assert.Equal(t, 50*time.Minute, parts[0].Duration)
		assert.True(t, parts[0].Start.Equal(at(2, 9, 0)))
		assert.True(t, parts[0].End.Equal(at(2, 9, 55)))
	})

	t.Run("across local midnight", func(t *testing.T) {
		parts := SplitByDay([]Segment{{Start: at(2, 23, 30), End: at(3, 0, 45)}}, loc)
		require.Len(t, parts, 2)
		assert.Equal(t, core.NewDate(2026, 3, 2), parts[0].Day)
		assert.Equal(t, 30*time.Minute, parts[0].Duration)
		assert.Equal(t, core.NewDate(2026, 3, 3), parts[1].Day)
		assert.Equal(t, 45*time.Minute, parts[1].Duration)
		assert.True(t, parts[1].Start.Equal(at(3, 0, 0)))
	})

	t.Run("utc midnight is not a cut", func(t *testing.T) {
		// 01:00-03:00 local is 23:00-01:00 UTC
		parts := SplitByDay([]Segment{{Start: at(3, 1, 0), End: at(3, 3, 0)}}, loc)
		require.Len(t, parts, 1)
		assert.Equal(t, core.NewDate(2026, 3, 3), parts[0].Day)
	})

	t.Run("spanning several days", func(t *testing.T) {
		parts := SplitByDay([]Segment{{Start: at(2, 22, 0), End: at(4, 1, 0)}}, loc)
		require.Len(t, parts, 3)
		assert.Equal(t, 2*time.Hour, parts[0].Duration)
		assert.Equal(t, 24*time.Hour, parts[1].Duration)
		assert.Equal(t, time.Hour, parts[2].Duration)
	})

	t.Run("empty segments", func(t *testing.T) {
		assert.Empty(t, SplitByDay([]Segment{{Start: at(2, 9, 0), End: at(2, 9, 0)}}, loc))
		assert.Empty(t, SplitByDay(nil, loc))
	})
}
