package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lawvriksh/referral-engine/internal/models"
)

// TieBreak selects how users with equal points are ordered.
type TieBreak string

const (
	// TieBreakFirstToReach ranks the user who arrived at the total earlier
	// in wall-clock time higher, then lower user id.
	TieBreakFirstToReach TieBreak = "first-to-reach"
	// TieBreakUserID ranks by user id only.
	TieBreakUserID TieBreak = "user-id"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	Port             string
	DBURL            string
	UseInMemoryStore bool
	Environment      string
	Rewards          models.RewardTable
	TieBreak         TieBreak
	WindowRetention  time.Duration
}

// Load reads configuration from environment variables. A .env file is loaded
// if present to simplify local development. We look in bin/.env so the file
// can live alongside a built binary, and fall back to .env in the project
// root for compatibility.
func Load() Config {
	loadDotEnv()

	cfg := Config{
		Port:            getString("PORT", "8080"),
		DBURL:           getString("DATABASE_URL", ""),
		Environment:     getString("ENVIRONMENT", "local"),
		Rewards:         parseRewardTable(getString("REWARD_TABLE", "")),
		TieBreak:        parseTieBreak(getString("TIE_BREAK", "")),
		WindowRetention: getDurationDays("WINDOW_RETENTION_DAYS", 32),
	}

	cfg.UseInMemoryStore = cfg.DBURL == ""
	return cfg
}

// parseRewardTable overlays "platform:points" pairs onto the defaults, e.g.
// "facebook:50,whatsapp:0". Unknown platforms and malformed pairs are skipped.
func parseRewardTable(raw string) models.RewardTable {
	table := models.DefaultRewardTable()
	if raw == "" {
		return table
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		platform := models.Platform(strings.ToLower(strings.TrimSpace(parts[0])))
		if _, ok := table[platform]; !ok {
			log.Printf("REWARD_TABLE: unknown platform %q, skipping", parts[0])
			continue
		}
		points, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || points < 0 {
			log.Printf("REWARD_TABLE: invalid points for %q, skipping", parts[0])
			continue
		}
		table[platform] = points
	}
	return table
}

func parseTieBreak(raw string) TieBreak {
	switch TieBreak(strings.ToLower(strings.TrimSpace(raw))) {
	case TieBreakUserID:
		return TieBreakUserID
	default:
		return TieBreakFirstToReach
	}
}

func loadDotEnv() {
	candidates := []string{
		filepath.Join("bin", ".env"),
		".env",
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append([]string{
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "bin", ".env"),
		}, candidates...)
	}

	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDurationDays(key string, fallback int) time.Duration {
	if val := os.Getenv(key); val != "" {
		days, err := strconv.Atoi(val)
		if err != nil || days <= 0 {
			log.Printf("invalid value for %s, using fallback: %v", key, err)
			return time.Duration(fallback) * 24 * time.Hour
		}
		return time.Duration(days) * 24 * time.Hour
	}
	return time.Duration(fallback) * 24 * time.Hour
}
