package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	applog "github.com/lawvriksh/referral-engine/internal/logger"
	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/lawvriksh/referral-engine/internal/repository"
	"github.com/sirupsen/logrus"
)

var (
	ErrValidation = errors.New("validation_error")
	// ErrInvalidPlatform flags a platform name outside the reward table.
	ErrInvalidPlatform = fmt.Errorf("%w: invalid platform", ErrValidation)
	// ErrUnknownUser flags a user id the identity source never registered.
	ErrUnknownUser = fmt.Errorf("%w: unknown user", ErrValidation)
)

// Ledger appends share attempts and enforces the first-share-per-platform
// reward rule. Duplicate shares are the normal no-op path, not errors.
type Ledger struct {
	repo    repository.ShareRepository
	rewards models.RewardTable
	logger  *logrus.Entry
	locks   keyedMutex
	now     func() time.Time
}

func New(repo repository.ShareRepository, rewards models.RewardTable, logger *logrus.Logger) *Ledger {
	return &Ledger{
		repo:    repo,
		rewards: rewards,
		logger:  applog.Component(logger, "share-ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one share attempt. The first attempt per (user, platform)
// is rewarded with the table amount; later ones are written unrewarded.
// Concurrent attempts for the same pair serialize on a per-key lock, and
// the repository's uniqueness constraint backstops writers in other
// processes.
func (l *Ledger) Record(ctx context.Context, userID, platformName string, at time.Time) (models.ShareEvent, error) {
	platform := models.Platform(strings.ToLower(strings.TrimSpace(platformName)))
	points, ok := l.rewards[platform]
	if !ok {
		return models.ShareEvent{}, fmt.Errorf("%w: %q", ErrInvalidPlatform, platformName)
	}
	if strings.TrimSpace(userID) == "" {
		return models.ShareEvent{}, fmt.Errorf("%w: empty user id", ErrValidation)
	}
	user, err := l.repo.GetUser(ctx, userID)
	if err != nil {
		return models.ShareEvent{}, err
	}
	if user == nil {
		return models.ShareEvent{}, fmt.Errorf("%w: %q", ErrUnknownUser, userID)
	}
	if at.IsZero() {
		at = l.now()
	}

	unlock := l.locks.lock(userID + "::" + string(platform))
	defer unlock()

	evt := models.ShareEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		Platform: platform,
		SharedAt: at.UTC(),
	}

	already, err := l.repo.HasRewardedShare(ctx, userID, platform)
	if err != nil {
		return models.ShareEvent{}, err
	}
	if !already {
		evt.Rewarded = true
		evt.PointsAwarded = points
		err = l.repo.CreateShareEvent(ctx, evt)
		if errors.Is(err, repository.ErrDuplicateShare) {
			// Another writer won the race under a different process.
			already = true
		} else if err != nil {
			return models.ShareEvent{}, err
		}
	}
	if already {
		evt.Rewarded = false
		evt.PointsAwarded = 0
		if err := l.repo.CreateShareEvent(ctx, evt); err != nil {
			return models.ShareEvent{}, err
		}
		l.logger.WithFields(logrus.Fields{"userId": userID, "platform": platform}).
			Debug("repeat share, no reward")
		return evt, nil
	}

	l.logger.WithFields(logrus.Fields{"userId": userID, "platform": platform, "points": points}).
		Debug("share rewarded")
	return evt, nil
}

// keyedMutex hands out one mutex per ledger key so writers on disjoint
// (user, platform) pairs never block each other.
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
