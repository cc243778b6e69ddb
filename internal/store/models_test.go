package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecord_IsComponentPart(t *testing.T) {
	host := Record{ID: "r1"}
	part := Record{ID: "r2", HostRecordID: "r1"}

	assert.False(t, host.IsComponentPart())
	assert.True(t, part.IsComponentPart())
}

func TestRecord_Payload(t *testing.T) {
	withNormalized := Record{OriginalData: "<raw/>", NormalizedData: `{"title":"x"}`}
	withoutNormalized := Record{OriginalData: "<raw/>"}

	assert.Equal(t, `{"title":"x"}`, withNormalized.Payload())
	assert.Equal(t, "<raw/>", withoutNormalized.Payload())
}

func TestDedupGroup_DistinctSourceCount(t *testing.T) {
	g := DedupGroup{IDs: []string{"a", "b", "c"}}
	sourceOf := map[string]string{"a": "s1", "b": "s1", "c": "s2"}

	assert.Equal(t, 2, g.DistinctSourceCount(sourceOf))
}

func TestDedupGroup_HasSource(t *testing.T) {
	g := DedupGroup{IDs: []string{"a", "b"}}
	sourceOf := map[string]string{"a": "s1", "b": "s2"}

	assert.True(t, g.HasSource("s1", sourceOf))
	assert.False(t, g.HasSource("s3", sourceOf))
}

func TestURICacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fresh := URICacheEntry{Timestamp: now.Add(-time.Hour)}
	stale := URICacheEntry{Timestamp: now.Add(-48 * time.Hour)}

	assert.False(t, fresh.Expired(now, 24*time.Hour))
	assert.True(t, stale.Expired(now, 24*time.Hour))
}
