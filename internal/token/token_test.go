package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCheckAndAward(t *testing.T) {
	tests := []struct {
		name          string
		points        int64
		threshold     int64
		wantTokens    int64
		wantRemaining int64
	}{
		{"below threshold", 499, 500, 0, 499},
		{"exactly one threshold", 500, 500, 1, 0},
		{"two thresholds with remainder", 1200, 500, 2, 200},
		{"many thresholds", 5000, 500, 10, 0},
		{"zero points", 0, 500, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, remaining, err := CheckAndAward(tt.points, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTokens, tokens)
			assert.Equal(t, tt.wantRemaining, remaining)
		})
	}
}

func TestCheckAndAward_InvalidThreshold(t *testing.T) {
	_, _, err := CheckAndAward(1000, 0)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, _, err = CheckAndAward(1000, -500)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

// TestCheckAndAwardConservationProperty verifies that the conversion
// conserves points: tokens*threshold + remaining == pointsCurrent, and the
// remainder never reaches a full threshold.
func TestCheckAndAwardConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		points := rapid.Int64Range(0, 10_000_000).Draw(t, "points")
		threshold := rapid.Int64Range(1, 100_000).Draw(t, "threshold")

		tokens, remaining, err := CheckAndAward(points, threshold)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tokens*threshold+remaining != points {
			t.Fatalf("conversion lost points: %d tokens * %d + %d != %d",
				tokens, threshold, remaining, points)
		}
		if remaining < 0 || remaining >= threshold {
			t.Fatalf("remainder %d out of range [0, %d)", remaining, threshold)
		}
		if tokens < 0 {
			t.Fatalf("negative token award: %d", tokens)
		}
	})
}
