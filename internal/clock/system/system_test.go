package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC().Add(-time.Second)
	got := New().Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "got %v", got)
}

func TestFixedClockAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2021, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	clk := NewFixed(start)
	require.True(t, clk.Now().Equal(start))
	require.Equal(t, time.UTC, clk.Now().Location())

	clk.Advance(time.Hour)
	require.True(t, clk.Now().Equal(start.Add(time.Hour)))
}
