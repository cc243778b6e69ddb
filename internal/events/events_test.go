package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPublisherConfig_SnappyAndOneAck(t *testing.T) {
	cfg := DefaultPublisherConfig()
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, 1, cfg.RequiredAcks)
	assert.Equal(t, 100, cfg.BatchSize)
}

func TestHarvestCompleted_CarriesCounts(t *testing.T) {
	e := HarvestCompleted("src1", 5, 2)
	assert.Equal(t, TypeHarvestCompleted, e.EventType)
	assert.Equal(t, "src1", e.SourceID)
	assert.Equal(t, 5, e.Added)
	assert.Equal(t, 2, e.Deleted)
}

func TestIndexUpdated_CarriesCounts(t *testing.T) {
	e := IndexUpdated("src1", 10, 1)
	assert.Equal(t, TypeIndexUpdated, e.EventType)
	assert.Equal(t, 10, e.Added)
	assert.Equal(t, 1, e.Deleted)
}

func TestRecordDeleted_CarriesRecordID(t *testing.T) {
	e := RecordDeleted("src1", "rec.1")
	assert.Equal(t, TypeRecordDeleted, e.EventType)
	assert.Equal(t, "rec.1", e.RecordID)
}

func TestGroupMerged_CarriesMemberIDs(t *testing.T) {
	e := GroupMerged("grp.1", []string{"a", "b"})
	assert.Equal(t, TypeGroupMerged, e.EventType)
	assert.Equal(t, "grp.1", e.GroupID)
	assert.Equal(t, []string{"a", "b"}, e.MemberIDs)
}

func TestSourceRetired_CarriesSourceID(t *testing.T) {
	e := SourceRetired("src1")
	assert.Equal(t, TypeSourceRetired, e.EventType)
	assert.Equal(t, "src1", e.SourceID)
}

func TestEvent_MarshalsOmitsEmptyOptionalFields(t *testing.T) {
	e := HarvestCompleted("src1", 0, 0)
	data, err := json.Marshal(e)
	assert.NoError(t, err)

	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "record_id")
	assert.NotContains(t, decoded, "group_id")
	assert.NotContains(t, decoded, "member_ids")
	assert.NotContains(t, decoded, "added")
	assert.NotContains(t, decoded, "deleted")
}
