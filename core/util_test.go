package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{12 * time.Minute, "12m"},
		{12*time.Minute + 30*time.Second, "12m 30s"},
		{2*time.Hour + 5*time.Minute + 59*time.Second, "2h 05m"},
		{26 * time.Hour, "26h 00m"},
		{-90 * time.Second, "-1m 30s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{-3, "00:00"},
		{0, "00:00"},
		{1500, "25:00"},
		{3723, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.secs); got != tt.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestStartOfWeek(t *testing.T) {
	loc := time.FixedZone("EAT", 3*3600)
	// sunday 2026-10-18 23:30 local
	sunday := time.Date(2026, 10, 18, 23, 30, 0, 0, loc)
	if got, want := StartOfWeek(sunday, loc), time.Date(2026, 10, 12, 0, 0, 0, 0, loc); !got.Equal(want) {
		t.Errorf("StartOfWeek(sunday) = %v, want %v", got, want)
	}
	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, loc)
	if got := StartOfWeek(monday, loc); !got.Equal(monday) {
		t.Errorf("StartOfWeek(monday) = %v, want %v", got, monday)
	}
}

func TestDayKey(t *testing.T) {
	loc := time.FixedZone("WAT", 1*3600)
	ts := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)
	if got := DayKey(ts, loc); got != "2026-02-01" {
		t.Errorf("DayKey() = %s, want 2026-02-01", got)
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, 2, d.DaysUntil(NewDate(2024, time.March, 1)))

	data, err := json.Marshal(struct {
		Due *Date `json:"due"`
	}{&d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due": "2024-02-28"}`, string(data))

	var got struct {
		Due *Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due": "2025-01-05"}`), &got))
	assert.Equal(t, NewDate(2025, time.January, 5), *got.Due)

	_, err = ParseDate("05/01/2025")
	assert.Error(t, err)

	loc := time.FixedZone("UTC+3", 3*3600)
	assert.Equal(t, NewDate(2025, time.January, 6), DateOf(time.Date(2025, 1, 5, 22, 0, 0, 0, time.UTC).In(loc)))
}
