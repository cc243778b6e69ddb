package solrupdate

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/recordmanager/internal/store"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// DeleteDataSource implements `manage --func=deletesolr`: it issues a Solr
// delete-by-query for every document under sourceID's id prefix and, when
// merging is enabled, first rewrites (or deletes) any merged group document
// the source participated in so the source's members are dropped from it
// rather than left indexed under a stale prefix.
func (p *Pipeline) DeleteDataSource(ctx context.Context, sourceID string, sc SourceConfig, sources map[string]SourceConfig, mergingEnabled, noCommit bool) error {
	ctx, span := telemetry.StartSpan(ctx, "solrupdate.Pipeline.DeleteDataSource")
	defer span.End()

	if mergingEnabled {
		if err := p.rewriteGroupsForRetiredSource(ctx, sourceID, sources); err != nil {
			return err
		}
	}

	if err := p.solr.DeleteByQuery(ctx, fmt.Sprintf("id:%s.*", sc.IDPrefix)); err != nil {
		return fmt.Errorf("delete-by-query for source %s: %w", sourceID, err)
	}
	if !noCommit {
		if err := p.solr.Commit(ctx); err != nil {
			return fmt.Errorf("commit after deleting source %s: %w", sourceID, err)
		}
	}
	return nil
}

func (p *Pipeline) rewriteGroupsForRetiredSource(ctx context.Context, sourceID string, sources map[string]SourceConfig) error {
	recs, err := p.records.ListAllBySource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list records for retired source %s: %w", sourceID, err)
	}

	groupIDs := make(map[string]struct{})
	for _, rec := range recs {
		if rec.DedupID != nil {
			groupIDs[*rec.DedupID] = struct{}{}
		}
	}

	for groupID := range groupIDs {
		g, err := p.groups.GetByID(ctx, groupID)
		if err != nil {
			return fmt.Errorf("load group %s: %w", groupID, err)
		}
		if g == nil || g.Deleted {
			continue
		}

		memberRecs, err := p.records.ListByIDs(ctx, g.IDs)
		if err != nil {
			return fmt.Errorf("load members of group %s: %w", groupID, err)
		}
		sourceOf := make(map[string]string, len(memberRecs))
		remaining := make([]store.Record, 0, len(memberRecs))
		for _, m := range memberRecs {
			sourceOf[m.ID] = m.SourceID
			if m.SourceID == sourceID || m.Deleted {
				continue
			}
			remaining = append(remaining, m)
		}
		remainingIDs := make([]string, len(remaining))
		for i, m := range remaining {
			remainingIDs[i] = m.ID
		}

		distinctSources := (&store.DedupGroup{IDs: remainingIDs}).DistinctSourceCount(sourceOf)
		if distinctSources < 2 {
			if err := p.groups.MarkDeleted(ctx, groupID); err != nil {
				return fmt.Errorf("mark group %s deleted: %w", groupID, err)
			}
			if err := p.solr.DeleteByID(ctx, groupID); err != nil {
				return fmt.Errorf("delete group doc %s: %w", groupID, err)
			}
			continue
		}

		if err := p.groups.SetMembers(ctx, groupID, remainingIDs); err != nil {
			return fmt.Errorf("set remaining members of group %s: %w", groupID, err)
		}
		doc, err := p.buildGroupDoc(ctx, groupID, remaining, sources)
		if err != nil {
			return fmt.Errorf("rebuild group doc %s: %w", groupID, err)
		}
		if err := p.solr.Add(ctx, []map[string]any{toAnyDoc(doc)}); err != nil {
			return fmt.Errorf("re-add rewritten group doc %s: %w", groupID, err)
		}
	}
	return nil
}
