package models

import (
	"time"
)

// Platform is one of the external networks a user can share to.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedin  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformWhatsapp  Platform = "whatsapp"
)

// Platforms lists every recognized platform in a stable order.
var Platforms = []Platform{
	PlatformFacebook,
	PlatformTwitter,
	PlatformLinkedin,
	PlatformInstagram,
	PlatformWhatsapp,
}

// RewardTable maps a platform to the points granted for the first share on it.
type RewardTable map[Platform]int

// DefaultRewardTable returns the product defaults. Tunable via config,
// see REWARD_TABLE.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		PlatformFacebook:  50,
		PlatformTwitter:   25,
		PlatformLinkedin:  75,
		PlatformInstagram: 40,
		PlatformWhatsapp:  30,
	}
}

// User mirrors the identity record owned by the external auth flow.
// Points are not stored here; they are derived state.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// ShareEvent is one share attempt. Immutable once written; the rewarded
// flag only ever transitions unrewarded -> rewarded at creation time.
type ShareEvent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Platform      Platform  `json:"platform"`
	SharedAt      time.Time `json:"sharedAt"`
	Rewarded      bool      `json:"rewarded"`
	PointsAwarded int       `json:"pointsAwarded"`
}

// ShareResult is the outcome of recording a share attempt.
type ShareResult struct {
	Rewarded      bool `json:"rewarded"`
	PointsAwarded int  `json:"pointsAwarded"`
	NewTotal      int  `json:"newTotal"`
}

// RankEntry is one row of the all-time leaderboard. Rank is 1-based and
// dense, derived from index position at read time.
type RankEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Points int    `json:"points"`
}

// LeaderboardEntry annotates a rank entry with display data for the API.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Points      int    `json:"points"`
	SharesCount int    `json:"sharesCount"`
}

// Pagination describes a leaderboard page.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// LeaderboardPage is the paginated board response.
type LeaderboardPage struct {
	Entries    []LeaderboardEntry `json:"entries"`
	Pagination Pagination         `json:"pagination"`
}

// AroundMeEntry is one row of the window surrounding a user.
type AroundMeEntry struct {
	Rank          int    `json:"rank"`
	Name          string `json:"name"`
	Points        int    `json:"points"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

// AroundMeStats summarizes the caller's own standing.
type AroundMeStats struct {
	Rank             int     `json:"rank"`
	Points           int     `json:"points"`
	PointsToNextRank int     `json:"pointsToNextRank"`
	Percentile       float64 `json:"percentile"`
}

// AroundMeView is the truncated leaderboard slice around one user.
type AroundMeView struct {
	Entries []AroundMeEntry `json:"entries"`
	Stats   AroundMeStats   `json:"stats"`
}

// Period selects the window for top-performer queries.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all-time"
)

// TopPerformer is one row of a windowed gainers list.
type TopPerformer struct {
	Rank         int     `json:"rank"`
	UserID       string  `json:"userId"`
	Name         string  `json:"name"`
	PointsGained int     `json:"pointsGained"`
	TotalPoints  int     `json:"totalPoints"`
	GrowthRate   float64 `json:"growthRate"`
}

// PeriodStats summarizes activity inside the queried window.
type PeriodStats struct {
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	TotalPointsAwarded int       `json:"totalPointsAwarded"`
	ActiveUsers        int       `json:"activeUsers"`
}

// TopPerformersView is the windowed gainers response.
type TopPerformersView struct {
	Period  Period         `json:"period"`
	Entries []TopPerformer `json:"entries"`
	Stats   PeriodStats    `json:"periodStats"`
}
