package httpx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonRetryableStatus_404Only(t *testing.T) {
	assert.True(t, nonRetryableStatus(http.StatusNotFound))
	assert.False(t, nonRetryableStatus(http.StatusInternalServerError))
	assert.False(t, nonRetryableStatus(http.StatusTooManyRequests))
}

func TestBackoff_DoublesEachAttempt(t *testing.T) {
	base := time.Second
	assert.Equal(t, base, backoff(base, 30*time.Second, 1))
	assert.Equal(t, 2*base, backoff(base, 30*time.Second, 2))
	assert.Equal(t, 4*base, backoff(base, 30*time.Second, 3))
}

func TestBackoff_CapsAtMax(t *testing.T) {
	got := backoff(time.Second, 30*time.Second, 10)
	assert.Equal(t, 30*time.Second, got)
}

func TestBackoff_ZeroInitialDefaultsToOneSecond(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0, 30*time.Second, 1))
}

func TestDefaultConfig_MatchesRetryPolicy(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 1*time.Second, cfg.RetryWait)
	assert.Greater(t, cfg.MaxTries, 1)
}
