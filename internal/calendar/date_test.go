package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		start  string
		months int
		want   string
	}{
		{"2025-03-15", 3, "2025-06-15"},
		{"2024-01-31", 1, "2024-02-29"},
		{"2023-01-31", 1, "2023-02-28"},
		{"2025-08-31", 1, "2025-09-30"},
		{"2025-11-30", 2, "2026-01-30"},
		{"2024-02-29", 12, "2025-02-28"},
		{"2025-01-01", 0, "2025-01-01"},
		{"2025-12-31", 6, "2026-06-30"},
	}

	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			got := MustParse(tt.start).AddMonths(tt.months)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAddMonthsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := New(
			rapid.IntRange(1990, 2100).Draw(t, "year"),
			time.Month(rapid.IntRange(1, 12).Draw(t, "month")),
			rapid.IntRange(1, 31).Draw(t, "day"),
		)
		n := rapid.IntRange(0, 24).Draw(t, "months")
		got := start.AddMonths(n)

		startIndex := start.Year()*12 + int(start.Month()) - 1
		gotIndex := got.Year()*12 + int(got.Month()) - 1
		if gotIndex-startIndex != n {
			t.Fatalf("%s + %d months landed in %s", start, n, got)
		}
		if got.Day() > start.Day() {
			t.Fatalf("%s + %d months moved the day forward to %s", start, n, got)
		}
		if got.Day() < start.Day() && got.Day() != DaysIn(got.Year(), got.Month()) {
			t.Fatalf("%s + %d months clamped to %s, not the month end", start, n, got)
		}
	})
}

func TestDateJSON(t *testing.T) {
	var v struct {
		Start Date `json:"start"`
		End   Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2025-03-15","end":"2025-06-15T00:00:00+00:00"}`), &v))
	assert.Equal(t, New(2025, time.March, 15), v.Start)
	assert.Equal(t, New(2025, time.June, 15), v.End)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-03-15","end":"2025-06-15"}`, string(out))

	out, err = json.Marshal(struct {
		D Date `json:"d"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":null}`, string(out))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2025, 6, 15, 0, 0, 0, 0, time.FixedZone("x", 3600))))
	assert.Equal(t, "2025-06-15", d.String())

	require.NoError(t, d.Scan([]byte("2024-02-29")))
	assert.Equal(t, "2024-02-29", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))
}

func TestSameMonth(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)
	assert.True(t, MustParse("2025-01-01").SameMonth(now))
	assert.False(t, MustParse("2024-01-20").SameMonth(now))
	assert.False(t, MustParse("2025-02-01").SameMonth(now))
}
