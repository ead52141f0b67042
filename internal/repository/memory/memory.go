package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/lawvriksh/referral-engine/internal/repository"
)

// InMemoryRepo keeps the ledger and user directory in process memory.
// Used when DATABASE_URL is unset; data resets on restart.
type InMemoryRepo struct {
	mu            sync.RWMutex
	eventsByUser  map[string][]models.ShareEvent
	rewardedIndex map[string]struct{}
	users         map[string]models.User
}

func New() *InMemoryRepo {
	return &InMemoryRepo{
		eventsByUser:  make(map[string][]models.ShareEvent),
		rewardedIndex: make(map[string]struct{}),
		users:         make(map[string]models.User),
	}
}

func (r *InMemoryRepo) CreateShareEvent(ctx context.Context, evt models.ShareEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.Rewarded {
		key := r.key(evt.UserID, evt.Platform)
		if _, ok := r.rewardedIndex[key]; ok {
			return repository.ErrDuplicateShare
		}
		r.rewardedIndex[key] = struct{}{}
	}

	r.eventsByUser[evt.UserID] = append(r.eventsByUser[evt.UserID], evt)
	return nil
}

func (r *InMemoryRepo) HasRewardedShare(ctx context.Context, userID string, platform models.Platform) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rewardedIndex[r.key(userID, platform)]
	return ok, nil
}

func (r *InMemoryRepo) CountRewardedShares(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, evt := range r.eventsByUser[userID] {
		if evt.Rewarded {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepo) SumAwardedPoints(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := 0
	for _, evt := range r.eventsByUser[userID] {
		sum += evt.PointsAwarded
	}
	return sum, nil
}

func (r *InMemoryRepo) ListShareEvents(ctx context.Context) ([]models.ShareEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := []models.ShareEvent{}
	for _, evts := range r.eventsByUser {
		events = append(events, evts...)
	}
	sortBySharedAt(events)
	return events, nil
}

func (r *InMemoryRepo) ListShareEventsSince(ctx context.Context, since time.Time) ([]models.ShareEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := []models.ShareEvent{}
	for _, evts := range r.eventsByUser {
		for _, evt := range evts {
			if !evt.SharedAt.Before(since) {
				events = append(events, evt)
			}
		}
	}
	sortBySharedAt(events)
	return events, nil
}

func (r *InMemoryRepo) UpsertUser(ctx context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *InMemoryRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.users[id]; ok {
		copy := user
		return &copy, nil
	}
	return nil, nil
}

func (r *InMemoryRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b models.User) int {
		if a.JoinedAt.Before(b.JoinedAt) {
			return -1
		}
		if a.JoinedAt.After(b.JoinedAt) {
			return 1
		}
		return 0
	})
	return users, nil
}

func (r *InMemoryRepo) key(userID string, platform models.Platform) string {
	return userID + "::" + string(platform)
}

func sortBySharedAt(events []models.ShareEvent) {
	slices.SortFunc(events, func(a, b models.ShareEvent) int {
		if a.SharedAt.Before(b.SharedAt) {
			return -1
		}
		if a.SharedAt.After(b.SharedAt) {
			return 1
		}
		return 0
	})
}
