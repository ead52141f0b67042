package rank

import (
	"math"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/lawvriksh/referral-engine/internal/models"
)

// TieBreak selects the ordering between users with equal points.
type TieBreak int

const (
	// FirstToReach ranks the user who arrived at the total earlier in
	// wall-clock time higher; lower user id decides the rest.
	FirstToReach TieBreak = iota
	// ByUserID ranks equal-point users by id only.
	ByUserID
)

type entry struct {
	points    int
	reachedAt time.Time
	userID    string
}

// Index is the ordered structure over (points desc, tie-break) -> user.
// Single-entry updates are O(log n); reads traverse under a shared lock so
// each call observes one consistent snapshot.
type Index struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	byUser map[string]entry
}

// Window is an atomic around-me snapshot: the truncated slice plus the
// subject's own standing, taken under one read lock.
type Window struct {
	Entries     []models.RankEntry
	Rank        int
	Points      int
	AbovePoints int // points of the entry immediately above, 0 at rank 1
	Total       int
}

func New(tieBreak TieBreak) *Index {
	less := lessFirstToReach
	if tieBreak == ByUserID {
		less = lessByUserID
	}
	return &Index{
		tree:   btree.NewG(16, less),
		byUser: make(map[string]entry),
	}
}

// lessFirstToReach orders entries by rank: more points first, then earlier
// arrival at the total, then lower user id.
func lessFirstToReach(a, b entry) bool {
	if a.points != b.points {
		return a.points > b.points
	}
	if !a.reachedAt.Equal(b.reachedAt) {
		return a.reachedAt.Before(b.reachedAt)
	}
	return a.userID < b.userID
}

func lessByUserID(a, b entry) bool {
	if a.points != b.points {
		return a.points > b.points
	}
	return a.userID < b.userID
}

// Update removes the user's old key and reinserts the new one. reachedAt is
// the instant the user arrived at newTotal; it is the tie-break timestamp.
func (ix *Index) Update(userID string, newTotal int, reachedAt time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if old, ok := ix.byUser[userID]; ok {
		ix.tree.Delete(old)
	}
	e := entry{points: newTotal, reachedAt: reachedAt.UTC(), userID: userID}
	ix.tree.ReplaceOrInsert(e)
	ix.byUser[userID] = e
}

// Ensure inserts the user with zero points if not already indexed. Used when
// the directory learns about a user before their first reward, so join order
// doubles as the default ranking.
func (ix *Index) Ensure(userID string, joinedAt time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.byUser[userID]; ok {
		return
	}
	e := entry{points: 0, reachedAt: joinedAt.UTC(), userID: userID}
	ix.tree.ReplaceOrInsert(e)
	ix.byUser[userID] = e
}

// Len returns the number of indexed users.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}

// Page returns one page in rank order plus the total user count. Rank is
// globalOffset + localIndex + 1. Pages beyond the data are empty, not errors.
func (ix *Index) Page(page, pageSize int) ([]models.RankEntry, int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	offset := (page - 1) * pageSize
	entries := []models.RankEntry{}
	pos := 0
	ix.tree.Ascend(func(e entry) bool {
		if pos >= offset+pageSize {
			return false
		}
		if pos >= offset {
			entries = append(entries, models.RankEntry{
				Rank:   pos + 1,
				UserID: e.userID,
				Points: e.points,
			})
		}
		pos++
		return true
	})
	return entries, ix.tree.Len()
}

// Around returns the contiguous slice [max(1, rank-radius), min(N, rank+radius)]
// around the user. Near an edge the window is truncated, never re-centered.
// ok is false when the user is not indexed.
func (ix *Index) Around(userID string, radius int) (Window, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	self, ok := ix.byUser[userID]
	if !ok {
		return Window{}, false
	}
	rank := ix.rankOf(self)
	total := ix.tree.Len()

	start := rank - radius
	if start < 1 {
		start = 1
	}
	end := rank + radius
	if end > total {
		end = total
	}

	w := Window{
		Entries: make([]models.RankEntry, 0, end-start+1),
		Rank:    rank,
		Points:  self.points,
		Total:   total,
	}
	pos := 0
	ix.tree.Ascend(func(e entry) bool {
		pos++
		if pos == rank-1 {
			w.AbovePoints = e.points
		}
		if pos > end {
			return false
		}
		if pos >= start {
			w.Entries = append(w.Entries, models.RankEntry{
				Rank:   pos,
				UserID: e.userID,
				Points: e.points,
			})
		}
		return true
	})
	return w, true
}

// Rank returns the user's 1-based dense rank. ok is false when the user is
// not indexed.
func (ix *Index) Rank(userID string) (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byUser[userID]
	if !ok {
		return 0, false
	}
	return ix.rankOf(e), true
}

// Percentile returns round(100 * (1 - (rank-1)/N), 1). A population of one
// yields 100.0. ok is false when the user is not indexed.
func (ix *Index) Percentile(userID string) (float64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byUser[userID]
	if !ok {
		return 0, false
	}
	return percentile(ix.rankOf(e), ix.tree.Len()), true
}

func (ix *Index) rankOf(e entry) int {
	count := 0
	ix.tree.AscendLessThan(e, func(entry) bool {
		count++
		return true
	})
	return count + 1
}

func percentile(rank, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := 100 * (1 - float64(rank-1)/float64(total))
	return math.Round(p*10) / 10
}

// PercentileOf exposes the percentile formula for values taken from an
// atomic Window snapshot.
func PercentileOf(rank, total int) float64 {
	return percentile(rank, total)
}
