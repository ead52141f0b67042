package points

import (
	"fmt"
	"sync"
)

// Aggregator owns the authoritative running totals per user, derived only
// from ledger-confirmed rewards. Absence is a valid zero state.
type Aggregator struct {
	mu     sync.RWMutex
	totals map[string]int
	shares map[string]int
}

func New() *Aggregator {
	return &Aggregator{
		totals: make(map[string]int),
		shares: make(map[string]int),
	}
}

// Add applies a confirmed reward and returns the new total. Deltas must be
// positive; the ledger never confirms anything else.
func (a *Aggregator) Add(userID string, delta int) (int, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("point delta must be positive, got %d", delta)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totals[userID] += delta
	return a.totals[userID], nil
}

// Total returns the user's running total, 0 for unknown users.
func (a *Aggregator) Total(userID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totals[userID]
}

// Stats returns the sum of all running totals and the count of users
// holding a non-zero total.
func (a *Aggregator) Stats() (totalPoints, activeUsers int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, total := range a.totals {
		if total > 0 {
			totalPoints += total
			activeUsers++
		}
	}
	return totalPoints, activeUsers
}

// IncrementShares bumps the rewarded-share counter for a user.
func (a *Aggregator) IncrementShares(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shares[userID]++
}

// Shares returns the number of rewarded shares for a user.
func (a *Aggregator) Shares(userID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.shares[userID]
}
