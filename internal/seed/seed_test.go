package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-engine/internal/badge"
	"loyalty-engine/internal/model"
)

func TestDefaultBadgesAreValid(t *testing.T) {
	defs := DefaultBadges()
	require.NotEmpty(t, defs)

	seen := make(map[string]bool)
	for _, def := range defs {
		assert.NoError(t, def.Validate(), "badge %s", def.ID)
		assert.False(t, seen[def.ID], "duplicate badge id %s", def.ID)
		seen[def.ID] = true
	}
}

func TestTimeOfDayBadgesMatchPurchaseTime(t *testing.T) {
	byID := make(map[string]badge.Definition)
	for _, def := range DefaultBadges() {
		byID[def.ID] = def
	}
	earlyBird, ok := byID["early_bird"]
	require.True(t, ok)
	nightOwl, ok := byID["night_owl"]
	require.True(t, ok)

	morning := badge.Stats{Extra: map[string]any{"purchase_time": "08:15"}}
	night := badge.Stats{Extra: map[string]any{"purchase_time": "23:05"}}
	noOrder := badge.Stats{}

	assert.True(t, badge.Matches(morning, earlyBird.Trigger))
	assert.False(t, badge.Matches(night, earlyBird.Trigger))
	assert.True(t, badge.Matches(night, nightOwl.Trigger))
	assert.False(t, badge.Matches(morning, nightOwl.Trigger))
	assert.False(t, badge.Matches(noOrder, earlyBird.Trigger))
	assert.False(t, badge.Matches(noOrder, nightOwl.Trigger))
}

func TestDefaultWheelsAreValid(t *testing.T) {
	wheels := DefaultWheels()
	require.Len(t, wheels, 2)

	for _, w := range wheels {
		require.NoError(t, w.Validate(), "wheel %s", w.ID)

		// Base weights form a complete percentage distribution
		var total int64
		for _, slot := range w.Slots {
			total += slot.BaseWeight
		}
		assert.Equal(t, int64(100), total, "wheel %s", w.ID)
	}
}

func TestVIPWheelRequiresGold(t *testing.T) {
	var found bool
	for _, w := range DefaultWheels() {
		if w.ID != "vip_rewards" {
			continue
		}
		found = true
		assert.Equal(t, model.TierGold, w.Eligibility.RequiredTier)
		assert.Equal(t, int64(5000), w.Eligibility.MinOrderValue)
	}
	require.True(t, found)
}
