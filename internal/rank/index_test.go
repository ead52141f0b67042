package rank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestUpdateOrdersByPointsDescending(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("low", 10, baseTime)
	ix.Update("high", 100, baseTime.Add(time.Minute))
	ix.Update("mid", 50, baseTime.Add(2*time.Minute))

	entries, total := ix.Page(1, 10)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, total)
	assert.Equal(t, "high", entries[0].UserID)
	assert.Equal(t, "mid", entries[1].UserID)
	assert.Equal(t, "low", entries[2].UserID)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestUpdateReplacesOldKey(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("a", 10, baseTime)
	ix.Update("b", 20, baseTime)
	ix.Update("a", 30, baseTime.Add(time.Minute))

	entries, total := ix.Page(1, 10)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, "a", entries[0].UserID)
	assert.Equal(t, 30, entries[0].Points)
}

func TestTieBreakFirstToReach(t *testing.T) {
	ix := New(FirstToReach)
	// Both reach 75, alice first in wall-clock time.
	ix.Update("bob", 75, baseTime.Add(time.Second))
	ix.Update("alice", 75, baseTime)

	entries, _ := ix.Page(1, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, "bob", entries[1].UserID)
}

func TestTieBreakFallsBackToUserID(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("b", 75, baseTime)
	ix.Update("a", 75, baseTime)

	entries, _ := ix.Page(1, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].UserID)
}

func TestTieBreakByUserID(t *testing.T) {
	ix := New(ByUserID)
	// Arrival order must not matter in this mode.
	ix.Update("b", 75, baseTime)
	ix.Update("a", 75, baseTime.Add(time.Hour))

	entries, _ := ix.Page(1, 2)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].UserID)
}

func TestEnsureDoesNotOverwrite(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("a", 50, baseTime)
	ix.Ensure("a", baseTime.Add(time.Hour))

	entries, _ := ix.Page(1, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, 50, entries[0].Points)
}

func TestPageBeyondDataIsEmpty(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("a", 10, baseTime)

	entries, total := ix.Page(5, 10)
	assert.Empty(t, entries)
	assert.Equal(t, 1, total)
}

func TestPaginationNeverRepeatsOrOmits(t *testing.T) {
	ix := New(FirstToReach)
	for i := 0; i < 25; i++ {
		ix.Update(fmt.Sprintf("user-%02d", i), i*10, baseTime.Add(time.Duration(i)*time.Second))
	}

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		entries, total := ix.Page(page, 10)
		assert.Equal(t, 25, total)
		for _, e := range entries {
			assert.False(t, seen[e.UserID], "user %s repeated across pages", e.UserID)
			seen[e.UserID] = true
		}
	}
	assert.Len(t, seen, 25)
}

func TestAroundTruncatesAtTop(t *testing.T) {
	ix := New(FirstToReach)
	for i := 1; i <= 6; i++ {
		ix.Update(fmt.Sprintf("u%d", i), 100-i, baseTime)
	}

	// u1 holds rank 1; radius 2 gives ranks [1,2,3], not a padded window.
	w, ok := ix.Around("u1", 2)
	require.True(t, ok)
	require.Len(t, w.Entries, 3)
	assert.Equal(t, 1, w.Entries[0].Rank)
	assert.Equal(t, 3, w.Entries[2].Rank)
	assert.Equal(t, 1, w.Rank)
	assert.Equal(t, 0, w.AbovePoints)
}

func TestAroundTruncatesAtBottom(t *testing.T) {
	ix := New(FirstToReach)
	for i := 1; i <= 6; i++ {
		ix.Update(fmt.Sprintf("u%d", i), 100-i, baseTime)
	}

	w, ok := ix.Around("u6", 2)
	require.True(t, ok)
	require.Len(t, w.Entries, 3)
	assert.Equal(t, 4, w.Entries[0].Rank)
	assert.Equal(t, 6, w.Entries[2].Rank)
	assert.Equal(t, 6, w.Rank)
}

func TestAroundMiddleWindow(t *testing.T) {
	ix := New(FirstToReach)
	for i := 1; i <= 9; i++ {
		ix.Update(fmt.Sprintf("u%d", i), 100-i, baseTime)
	}

	w, ok := ix.Around("u5", 2)
	require.True(t, ok)
	require.Len(t, w.Entries, 5)
	assert.Equal(t, 3, w.Entries[0].Rank)
	assert.Equal(t, 7, w.Entries[4].Rank)
	// Entry immediately above u5 is u4 with 96 points.
	assert.Equal(t, 96, w.AbovePoints)
}

func TestAroundUnknownUser(t *testing.T) {
	ix := New(FirstToReach)
	_, ok := ix.Around("ghost", 2)
	assert.False(t, ok)
}

func TestPercentileSingleUser(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("only", 5, baseTime)

	p, ok := ix.Percentile("only")
	require.True(t, ok)
	assert.Equal(t, 100.0, p)

	r, ok := ix.Rank("only")
	require.True(t, ok)
	assert.Equal(t, 1, r)
}

func TestPercentileRoundsToOneDecimal(t *testing.T) {
	ix := New(FirstToReach)
	for i := 1; i <= 3; i++ {
		ix.Update(fmt.Sprintf("u%d", i), 100-i, baseTime)
	}

	// Rank 2 of 3: 100 * (1 - 1/3) = 66.666... -> 66.7
	p, ok := ix.Percentile("u2")
	require.True(t, ok)
	assert.Equal(t, 66.7, p)
}

func TestRankConsistentWithPoints(t *testing.T) {
	ix := New(FirstToReach)
	ix.Update("a", 300, baseTime)
	ix.Update("b", 200, baseTime)
	ix.Update("c", 100, baseTime)

	ra, _ := ix.Rank("a")
	rb, _ := ix.Rank("b")
	rc, _ := ix.Rank("c")
	assert.Less(t, ra, rb)
	assert.Less(t, rb, rc)
}
