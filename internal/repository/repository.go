package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lawvriksh/referral-engine/internal/models"
)

var (
	// ErrDuplicateShare indicates a rewarded share already exists for the
	// (user, platform) pair.
	ErrDuplicateShare = fmt.Errorf("duplicate rewarded share")
)

// ShareRepository abstracts durable storage for the share ledger and the
// user directory. Ledger rows are append-only; the rewarded uniqueness
// constraint is the cross-restart idempotency guarantee.
type ShareRepository interface {
	// CreateShareEvent appends one attempt. Returns ErrDuplicateShare when
	// evt.Rewarded is true and a rewarded event already exists for the pair.
	CreateShareEvent(ctx context.Context, evt models.ShareEvent) error
	HasRewardedShare(ctx context.Context, userID string, platform models.Platform) (bool, error)
	CountRewardedShares(ctx context.Context, userID string) (int, error)
	SumAwardedPoints(ctx context.Context, userID string) (int, error)
	ListShareEvents(ctx context.Context) ([]models.ShareEvent, error)
	ListShareEventsSince(ctx context.Context, since time.Time) ([]models.ShareEvent, error)

	UpsertUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}
