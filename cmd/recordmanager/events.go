package main

import (
	"github.com/Ramsey-B/recordmanager/internal/events"
	"github.com/Ramsey-B/recordmanager/internal/harvest"
	"github.com/Ramsey-B/recordmanager/internal/solrupdate"
)

// eventsHarvestCompleted adapts a harvest.Result (RecordsDeleted is int64,
// a Postgres row-count width) to events.HarvestCompleted's int signature.
func eventsHarvestCompleted(sourceID string, result harvest.Result) events.Event {
	return events.HarvestCompleted(sourceID, result.RecordsWritten, int(result.RecordsDeleted))
}

func indexUpdated(sourceID string, result solrupdate.Result) events.Event {
	return events.IndexUpdated(sourceID, result.Added, result.Deleted)
}

func sourceRetired(sourceID string) events.Event {
	return events.SourceRetired(sourceID)
}
