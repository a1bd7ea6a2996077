package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokensCountsCharacters(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 2, EstimateTokens("abcdefgh"))
	assert.Equal(t, 2, EstimateTokens("éééééééé"), "two-byte characters count once")
	assert.Equal(t, 1, EstimateTokens("日本語のテ"))
}

func TestSpanDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	open := Span{StartedAt: start}
	assert.Zero(t, open.Duration())

	end := start.Add(1500 * time.Microsecond)
	closed := Span{StartedAt: start, EndedAt: &end}
	assert.Equal(t, 1500*time.Microsecond, closed.Duration())
	assert.Equal(t, 1.5, closed.DurationMillis())
}
