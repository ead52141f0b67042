package config

import (
	"testing"

	"github.com/lawvriksh/referral-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseRewardTableDefaults(t *testing.T) {
	table := parseRewardTable("")
	assert.Equal(t, models.DefaultRewardTable(), table)
}

func TestParseRewardTableOverrides(t *testing.T) {
	table := parseRewardTable("whatsapp:0, Facebook:10")
	assert.Equal(t, 0, table[models.PlatformWhatsapp])
	assert.Equal(t, 10, table[models.PlatformFacebook])
	// Untouched entries keep their defaults.
	assert.Equal(t, 75, table[models.PlatformLinkedin])
}

func TestParseRewardTableSkipsGarbage(t *testing.T) {
	table := parseRewardTable("myspace:5,twitter:nope,linkedin:-3,instagram")
	assert.Equal(t, models.DefaultRewardTable(), table)
}

func TestParseTieBreak(t *testing.T) {
	assert.Equal(t, TieBreakFirstToReach, parseTieBreak(""))
	assert.Equal(t, TieBreakFirstToReach, parseTieBreak("whatever"))
	assert.Equal(t, TieBreakUserID, parseTieBreak("user-id"))
	assert.Equal(t, TieBreakUserID, parseTieBreak(" USER-ID "))
}
