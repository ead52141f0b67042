package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lawvriksh/referral-engine/internal/ledger"
	applog "github.com/lawvriksh/referral-engine/internal/logger"
	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/lawvriksh/referral-engine/internal/points"
	"github.com/lawvriksh/referral-engine/internal/rank"
	"github.com/lawvriksh/referral-engine/internal/repository"
	"github.com/lawvriksh/referral-engine/internal/window"
	"github.com/sirupsen/logrus"
)

var (
	ErrValidation = ledger.ErrValidation
	// ErrInternalConsistency means the aggregator total diverged from the
	// ledger sum. Writes for the user halt and rank reads fail closed.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

const (
	maxPageSize     = 100
	maxTopLimit     = 50
	maxAroundRadius = 50
)

// Engine composes the ledger, points aggregator, rank index and window
// aggregator into the external command/query surface. All derived state is
// updated synchronously inside RecordShare, so a caller immediately
// querying its own rank sees the new total.
type Engine struct {
	ledger  *ledger.Ledger
	points  *points.Aggregator
	rank    *rank.Index
	window  *window.Aggregator
	repo    repository.ShareRepository
	logger  *logrus.Entry
	now     func() time.Time
	windowR time.Duration

	// Serializes RecordShare per user, from the ledger write through the
	// consistency audit. The ledger's own lock is per (user, platform);
	// without this, two rewards for one user on disjoint platforms could
	// interleave points.Add and rank.Update so the index carries a stale
	// total. Disjoint users never contend.
	userLocks keyedMutex

	usersMu sync.RWMutex
	users   map[string]models.User

	poisonMu sync.RWMutex
	poisoned map[string]struct{}
}

// keyedMutex hands out one mutex per user so writers for disjoint users
// never block each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func New(repo repository.ShareRepository, rewards models.RewardTable, tieBreak rank.TieBreak, retention time.Duration, logger *logrus.Logger) *Engine {
	return &Engine{
		ledger:   ledger.New(repo, rewards, logger),
		points:   points.New(),
		rank:     rank.New(tieBreak),
		window:   window.New(retention),
		repo:     repo,
		logger:   applog.Component(logger, "engine"),
		now:      func() time.Time { return time.Now().UTC() },
		windowR:  retention,
		users:    make(map[string]models.User),
		poisoned: make(map[string]struct{}),
	}
}

// Bootstrap replays the persisted directory and ledger into the derived
// structures. Must run before the engine serves traffic; restart would
// otherwise lose idempotency and ranking.
func (e *Engine) Bootstrap(ctx context.Context) error {
	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list users: %w", err)
	}
	e.usersMu.Lock()
	for _, u := range users {
		e.users[u.ID] = u
	}
	e.usersMu.Unlock()
	for _, u := range users {
		e.rank.Ensure(u.ID, u.JoinedAt)
	}

	events, err := e.repo.ListShareEvents(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list share events: %w", err)
	}
	horizon := e.now().Add(-e.windowR)
	replayed := 0
	for _, evt := range events {
		if !evt.Rewarded {
			continue
		}
		total, err := e.points.Add(evt.UserID, evt.PointsAwarded)
		if err != nil {
			return fmt.Errorf("bootstrap: replay event %s: %w", evt.ID, err)
		}
		e.points.IncrementShares(evt.UserID)
		e.rank.Update(evt.UserID, total, evt.SharedAt)
		if evt.SharedAt.After(horizon) {
			e.window.Record(evt.UserID, evt.PointsAwarded, evt.SharedAt)
		}
		replayed++
	}
	e.logger.WithFields(logrus.Fields{"users": len(users), "rewards": replayed}).
		Info("bootstrap complete")
	return nil
}

// SyncUser mirrors a user from the external identity source into the
// directory. Zero-point users enter the rank index at join time, which is
// what makes registration order the default ranking.
func (e *Engine) SyncUser(ctx context.Context, user models.User) error {
	if user.ID == "" || user.Name == "" {
		return fmt.Errorf("%w: user id and name are required", ErrValidation)
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = e.now()
	}
	if err := e.repo.UpsertUser(ctx, user); err != nil {
		return err
	}
	e.usersMu.Lock()
	e.users[user.ID] = user
	e.usersMu.Unlock()
	e.rank.Ensure(user.ID, user.JoinedAt)
	return nil
}

// RecordShare is the single external write: ledger first, then the derived
// structures. A duplicate share short-circuits with rewarded=false and the
// unchanged total.
func (e *Engine) RecordShare(ctx context.Context, userID, platformName string, at time.Time) (models.ShareResult, error) {
	if e.isPoisoned(userID) {
		return models.ShareResult{}, fmt.Errorf("%w: user %s", ErrInternalConsistency, userID)
	}

	// Held from the ledger write through auditTotal: a reward for this user
	// must not land in the ledger while another one is mid-way through the
	// derived updates, or the audit would compare a stale total against a
	// sum that already includes it.
	unlock := e.userLocks.lock(userID)
	defer unlock()

	evt, err := e.ledger.Record(ctx, userID, platformName, at)
	if err != nil {
		return models.ShareResult{}, err
	}
	if !evt.Rewarded {
		return models.ShareResult{
			Rewarded:      false,
			PointsAwarded: 0,
			NewTotal:      e.points.Total(userID),
		}, nil
	}

	newTotal, err := e.points.Add(userID, evt.PointsAwarded)
	if err != nil {
		return models.ShareResult{}, err
	}
	e.points.IncrementShares(userID)
	e.rank.Update(userID, newTotal, evt.SharedAt)
	e.window.Record(userID, evt.PointsAwarded, evt.SharedAt)

	if err := e.auditTotal(ctx, userID, newTotal); err != nil {
		return models.ShareResult{}, err
	}

	return models.ShareResult{
		Rewarded:      true,
		PointsAwarded: evt.PointsAwarded,
		NewTotal:      newTotal,
	}, nil
}

// auditTotal cross-checks the aggregator against the ledger sum. On
// divergence the user key is poisoned: the bug is in the write path, so
// retrying cannot help and serving the rank would be silently wrong.
func (e *Engine) auditTotal(ctx context.Context, userID string, total int) error {
	sum, err := e.repo.SumAwardedPoints(ctx, userID)
	if err != nil {
		return err
	}
	if sum != total {
		e.poisonMu.Lock()
		e.poisoned[userID] = struct{}{}
		e.poisonMu.Unlock()
		e.logger.WithFields(logrus.Fields{
			"userId":      userID,
			"totalPoints": total,
			"ledgerSum":   sum,
		}).Error("aggregator total diverged from ledger sum, halting writes for user")
		return fmt.Errorf("%w: user %s total %d != ledger sum %d", ErrInternalConsistency, userID, total, sum)
	}
	return nil
}

func (e *Engine) isPoisoned(userID string) bool {
	e.poisonMu.RLock()
	defer e.poisonMu.RUnlock()
	_, ok := e.poisoned[userID]
	return ok
}

// Leaderboard returns one page of the all-time board with share counts.
func (e *Engine) Leaderboard(ctx context.Context, page, limit int) (models.LeaderboardPage, error) {
	if page < 1 {
		return models.LeaderboardPage{}, fmt.Errorf("%w: page must be >= 1", ErrValidation)
	}
	if limit < 1 || limit > maxPageSize {
		return models.LeaderboardPage{}, fmt.Errorf("%w: limit must be in [1,%d]", ErrValidation, maxPageSize)
	}

	entries, total := e.rank.Page(page, limit)
	out := make([]models.LeaderboardEntry, 0, len(entries))
	for _, re := range entries {
		out = append(out, models.LeaderboardEntry{
			Rank:        re.Rank,
			UserID:      re.UserID,
			Name:        e.userName(re.UserID),
			Points:      re.Points,
			SharesCount: e.points.Shares(re.UserID),
		})
	}
	pages := (total + limit - 1) / limit
	return models.LeaderboardPage{
		Entries: out,
		Pagination: models.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: pages,
		},
	}, nil
}

// AroundMe returns the truncated window around a user plus their own
// stats. An unindexed user is not an error: new users get zero-value stats.
func (e *Engine) AroundMe(ctx context.Context, userID string, radius int) (models.AroundMeView, error) {
	if radius < 0 || radius > maxAroundRadius {
		return models.AroundMeView{}, fmt.Errorf("%w: radius must be in [0,%d]", ErrValidation, maxAroundRadius)
	}
	if e.isPoisoned(userID) {
		return models.AroundMeView{}, fmt.Errorf("%w: user %s", ErrInternalConsistency, userID)
	}

	w, ok := e.rank.Around(userID, radius)
	if !ok {
		return models.AroundMeView{Entries: []models.AroundMeEntry{}}, nil
	}

	entries := make([]models.AroundMeEntry, 0, len(w.Entries))
	for _, re := range w.Entries {
		entries = append(entries, models.AroundMeEntry{
			Rank:          re.Rank,
			Name:          e.userName(re.UserID),
			Points:        re.Points,
			IsCurrentUser: re.UserID == userID,
		})
	}
	pointsToNext := 0
	if w.Rank > 1 {
		pointsToNext = w.AbovePoints - w.Points
	}
	return models.AroundMeView{
		Entries: entries,
		Stats: models.AroundMeStats{
			Rank:             w.Rank,
			Points:           w.Points,
			PointsToNextRank: pointsToNext,
			Percentile:       rank.PercentileOf(w.Rank, w.Total),
		},
	}, nil
}

// TopPerformers ranks users by point gain inside a rolling window ending
// now. "all-time" reads the rank index instead of the buckets.
func (e *Engine) TopPerformers(ctx context.Context, period models.Period, limit int) (models.TopPerformersView, error) {
	if limit < 1 || limit > maxTopLimit {
		return models.TopPerformersView{}, fmt.Errorf("%w: limit must be in [1,%d]", ErrValidation, maxTopLimit)
	}

	now := e.now()
	var span time.Duration
	switch period {
	case models.PeriodDaily:
		span = 24 * time.Hour
	case models.PeriodWeekly:
		span = 7 * 24 * time.Hour
	case models.PeriodMonthly:
		span = 30 * 24 * time.Hour
	case models.PeriodAllTime:
		return e.allTimePerformers(limit, now), nil
	default:
		return models.TopPerformersView{}, fmt.Errorf("%w: period must be daily, weekly, monthly or all-time", ErrValidation)
	}

	cutoff := now.Add(-span)
	gains := e.window.GainsSince(cutoff)

	ranked := make([]models.TopPerformer, 0, len(gains))
	totalAwarded := 0
	for userID, gained := range gains {
		total := e.points.Total(userID)
		ranked = append(ranked, models.TopPerformer{
			UserID:       userID,
			Name:         e.userName(userID),
			PointsGained: gained,
			TotalPoints:  total,
			GrowthRate:   growthRate(gained, total),
		})
		totalAwarded += gained
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].PointsGained != ranked[j].PointsGained {
			return ranked[i].PointsGained > ranked[j].PointsGained
		}
		if ranked[i].TotalPoints != ranked[j].TotalPoints {
			return ranked[i].TotalPoints > ranked[j].TotalPoints
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	activeUsers := len(ranked)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return models.TopPerformersView{
		Period:  period,
		Entries: ranked,
		Stats: models.PeriodStats{
			Start:              cutoff,
			End:                now,
			TotalPointsAwarded: totalAwarded,
			ActiveUsers:        activeUsers,
		},
	}, nil
}

// allTimePerformers reads the rank index instead of the buckets. Like the
// windowed periods, the stats cover every gainer, not just the returned
// page. All-time has no window start, so Start stays the zero time.
func (e *Engine) allTimePerformers(limit int, now time.Time) models.TopPerformersView {
	entries, _ := e.rank.Page(1, limit)
	ranked := make([]models.TopPerformer, 0, len(entries))
	for _, re := range entries {
		if re.Points == 0 {
			continue
		}
		ranked = append(ranked, models.TopPerformer{
			Rank:         len(ranked) + 1,
			UserID:       re.UserID,
			Name:         e.userName(re.UserID),
			PointsGained: re.Points,
			TotalPoints:  re.Points,
			GrowthRate:   growthRate(re.Points, re.Points),
		})
	}
	totalAwarded, active := e.points.Stats()
	return models.TopPerformersView{
		Period:  models.PeriodAllTime,
		Entries: ranked,
		Stats: models.PeriodStats{
			End:                now,
			TotalPointsAwarded: totalAwarded,
			ActiveUsers:        active,
		},
	}
}

// growthRate is gained / max(1, total-gained) * 100. The max guard keeps
// brand-new users (total == gained) from dividing by zero.
func growthRate(gained, total int) float64 {
	base := total - gained
	if base < 1 {
		base = 1
	}
	rate := float64(gained) / float64(base) * 100
	return math.Round(rate*10) / 10
}

func (e *Engine) userName(userID string) string {
	e.usersMu.RLock()
	defer e.usersMu.RUnlock()
	if u, ok := e.users[userID]; ok {
		return u.Name
	}
	return userID
}
