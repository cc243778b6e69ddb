package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_DoublesEachAttempt(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, backoffDelay(base, 30*time.Second, 1))
	assert.Equal(t, 2*base, backoffDelay(base, 30*time.Second, 2))
	assert.Equal(t, 4*base, backoffDelay(base, 30*time.Second, 3))
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	assert.Equal(t, 30*time.Second, backoffDelay(time.Second, 30*time.Second, 10))
}

func TestDefaultConfig_MatchesRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, time.Second, cfg.RetryWait)
	assert.Equal(t, 24*time.Hour, cfg.MinListIdentifiersInterval)
}

func TestDeletionMode_Constants(t *testing.T) {
	assert.Equal(t, DeletionMode(""), DeletionModeNone)
	assert.NotEqual(t, DeletionModeListIdentifiers, DeletionModeFullReharvest)
}
