package window

import (
	"sync"
	"time"
)

// Aggregator buckets per-user point gains by hour, serving rolling
// daily/weekly/monthly "top gainers" queries independent of all-time
// totals. Buckets older than the retention horizon are pruned so memory
// stays bounded by activeUsers * retentionHours.
type Aggregator struct {
	mu        sync.Mutex
	buckets   map[string]map[int64]int // userID -> unix hour -> points gained
	retention time.Duration
	nowFunc   func() time.Time
}

func New(retention time.Duration) *Aggregator {
	return &Aggregator{
		buckets:   make(map[string]map[int64]int),
		retention: retention,
		nowFunc:   time.Now,
	}
}

// Record adds a confirmed reward to the hour bucket containing ts. Each
// reward lands in exactly one bucket, so window sums never double-count.
func (a *Aggregator) Record(userID string, points int, ts time.Time) {
	if points <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	hours, ok := a.buckets[userID]
	if !ok {
		hours = make(map[int64]int)
		a.buckets[userID] = hours
	}
	hours[hourKey(ts)] += points

	a.pruneLocked(a.nowFunc())
}

// GainsSince sums each user's buckets overlapping (cutoff, now]. A bucket
// straddling the cutoff counts in full, so a window can include gains up to
// one hour older than the cutoff; that hour of edge tolerance is the cost
// of the single-bucket-per-reward invariant. Users with no gain in the
// window are absent from the result.
func (a *Aggregator) GainsSince(cutoff time.Time) map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pruneLocked(a.nowFunc())

	gains := make(map[string]int)
	edge := cutoff.Unix()
	for userID, hours := range a.buckets {
		sum := 0
		for hour, pts := range hours {
			// A bucket counts when any part of its hour lies past the cutoff.
			if hour+3600 > edge {
				sum += pts
			}
		}
		if sum > 0 {
			gains[userID] = sum
		}
	}
	return gains
}

func (a *Aggregator) pruneLocked(now time.Time) {
	horizon := now.Add(-a.retention).Unix()
	for userID, hours := range a.buckets {
		for hour := range hours {
			if hour+3600 <= horizon {
				delete(hours, hour)
			}
		}
		if len(hours) == 0 {
			delete(a.buckets, userID)
		}
	}
}

func hourKey(ts time.Time) int64 {
	return ts.UTC().Truncate(time.Hour).Unix()
}
