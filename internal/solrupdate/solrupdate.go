// Package solrupdate implements the Merge & Solr Update Pipeline: it scans
// the Record Store for settled plain records and changed dedup groups since
// a watermark, assembles one Solr document per canonical id (folding a live
// group's members into a single merged document), runs each document
// through the Field Mapper and Enrichment, and delivers the batch to Solr.
// The scan's own working set is cached in a transient queue collection so a
// rerun with the same parameters resumes instead of rescanning from scratch,
// grounded on the reference repository's merge-cluster dispatcher restated
// over this system's record/group/queue shape.
package solrupdate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/enrich"
	"github.com/Ramsey-B/recordmanager/internal/fieldmapper"
	"github.com/Ramsey-B/recordmanager/internal/solr"
	"github.com/Ramsey-B/recordmanager/internal/store"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// Config tunes batching and queue-collection housekeeping.
type Config struct {
	MaxBatchRecords   int           // flush to Solr after this many buffered docs
	MaxCommitInterval int           // issue an intermediate commit every N flushed records; 0 disables intermediate commits
	QueueRetention    time.Duration // queue collections older than this are pruned at the start of a run
}

// DefaultConfig mirrors the reference deployment's batching defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchRecords:   500,
		MaxCommitInterval: 5000,
		QueueRetention:    7 * 24 * time.Hour,
	}
}

// SourceConfig carries the per-datasource settings a document assembly needs:
// the id prefix used for delete-by-query, default document fields, and the
// configured Field Mapper / Enrichers for that source.
type SourceConfig struct {
	SourceID          string
	IDPrefix          string
	Institution       string
	Collection        string
	RecordType        string
	MergeComponents   bool            // fold component-part records into their host via driver.MergeComponentParts
	BuildingHierarchy bool            // explode a mapped `building` field into a hierarchy prefix sequence
	MultiValuedFields map[string]bool // fields a grouped document combines by union rather than first-non-empty
	Mapper            *fieldmapper.Set
	Enrichers         []enrich.Enricher
}

// RunOptions parameterizes one Update Pipeline invocation.
type RunOptions struct {
	FromDate     time.Time // explicit watermark; callers resolve "Last Index Update {source}" or beginning-of-time before calling Run
	SourceFilter string    // restrict the plain-record scan to one source; "" scans every source
	SingleID     string    // bypass the scan and queue entirely, (re)index one record or group id
	NoCommit     bool      // skip intermediate and final commits
	Compare      bool      // fetch each candidate from Solr and report diffs instead of posting
	DumpPrefix   string    // write batches as files under this path prefix instead of posting
}

// Result summarizes one Run.
type Result struct {
	Added   int
	Deleted int
	Skipped int
	Diffs   int // compare mode only: candidates whose computed doc differs from what's indexed
}

// Pipeline implements the scan, assemble, and deliver stages of the Merge &
// Solr Update Pipeline.
type Pipeline struct {
	records *store.RecordRepository
	groups  *store.GroupRepository
	queue   *store.QueueRepository
	state   *store.StateRepository
	solr    *solr.Client
	enrich  *enrich.Engine
	cfg     Config
	logger  ectologger.Logger
}

// New constructs a Pipeline.
func New(
	records *store.RecordRepository,
	groups *store.GroupRepository,
	queue *store.QueueRepository,
	state *store.StateRepository,
	solrClient *solr.Client,
	enrichEngine *enrich.Engine,
	cfg Config,
	logger ectologger.Logger,
) *Pipeline {
	return &Pipeline{
		records: records,
		groups:  groups,
		queue:   queue,
		state:   state,
		solr:    solrClient,
		enrich:  enrichEngine,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run scans for work, assembles documents, and delivers them to Solr (or a
// file/diff sink, in dumpPrefix/compare mode), per the five-step procedure:
// reuse or build a queue collection, iterate its members, assemble one
// document per member, batch-deliver, and persist the watermark.
func (p *Pipeline) Run(ctx context.Context, sources map[string]SourceConfig, opts RunOptions) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "solrupdate.Pipeline.Run")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{"source_filter": opts.SourceFilter})

	if n, err := p.queue.PruneOlderThan(ctx, time.Now().UTC().Add(-p.cfg.QueueRetention)); err != nil {
		log.WithError(err).Warn("prune stale queue collections")
	} else if n > 0 {
		log.WithFields(map[string]any{"pruned": n}).Info("pruned stale queue collections")
	}

	members, scanTime, err := p.resolveMembers(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	var result Result
	batch := newBatcher(p, opts)
	for _, memberID := range members {
		doc, deleteID, err := p.assemble(ctx, memberID, sources)
		if err != nil {
			log.WithFields(map[string]any{"member_id": memberID}).WithError(err).Warn("skipping member")
			result.Skipped++
			continue
		}
		if deleteID != "" {
			if err := batch.delete(ctx, deleteID); err != nil {
				return result, err
			}
			result.Deleted++
			continue
		}
		if doc == nil {
			result.Skipped++
			continue
		}
		added, diff, err := batch.add(ctx, doc)
		if err != nil {
			return result, err
		}
		if added {
			result.Added++
		}
		if diff {
			result.Diffs++
		}
	}
	if err := batch.flush(ctx); err != nil {
		return result, err
	}

	if opts.SourceFilter != "" && opts.SingleID == "" && !opts.Compare && opts.DumpPrefix == "" {
		if err := p.state.Set(ctx, store.IndexUpdateKey(opts.SourceFilter), scanTime.Format(time.RFC3339)); err != nil {
			return result, fmt.Errorf("persist index update watermark: %w", err)
		}
	}

	return result, nil
}

// resolveMembers returns the ordered set of record/group ids to process: a
// single explicit id, a reused finalized queue collection's members, or a
// freshly scanned and finalized collection's members.
func (p *Pipeline) resolveMembers(ctx context.Context, opts RunOptions) ([]string, time.Time, error) {
	ctx, span := telemetry.StartSpan(ctx, "solrupdate.Pipeline.resolveMembers")
	defer span.End()

	if opts.SingleID != "" {
		return []string{opts.SingleID}, time.Now().UTC(), nil
	}

	hash := parameterHash(opts)
	existing, err := p.queue.FindReusable(ctx, hash)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("find reusable queue: %w", err)
	}
	if existing != nil && !existing.FromDate.After(opts.FromDate) {
		members, err := p.queue.Members(ctx, existing.Name)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("load queue members: %w", err)
		}
		return members, existing.LastRecordTime, nil
	}

	scanTime := time.Now().UTC()
	tmpName := fmt.Sprintf("tmp_mr_record_%s", hash)
	if _, err := p.queue.BeginBuild(ctx, tmpName, hash, opts.FromDate); err != nil {
		return nil, time.Time{}, fmt.Errorf("begin queue build: %w", err)
	}

	plainRecs, err := p.records.ListForSolrScan(ctx, opts.SourceFilter, opts.FromDate)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("scan plain records: %w", err)
	}
	members := make([]string, 0, len(plainRecs))
	for _, rec := range plainRecs {
		if rec.DedupID == nil && !rec.IsComponentPart() {
			members = append(members, rec.ID)
		}
	}

	changedGroups, err := p.groups.ListChangedSince(ctx, sql.NullTime{Time: opts.FromDate, Valid: true})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("scan changed groups: %w", err)
	}
	for _, g := range changedGroups {
		members = append(members, g.ID)
	}

	if err := p.queue.AddMembers(ctx, tmpName, members); err != nil {
		return nil, time.Time{}, fmt.Errorf("add queue members: %w", err)
	}
	finalName := fmt.Sprintf("mr_record_%s_%d_%d", hash, opts.FromDate.Unix(), scanTime.Unix())
	if err := p.queue.Finalize(ctx, tmpName, finalName, scanTime); err != nil {
		return nil, time.Time{}, fmt.Errorf("finalize queue: %w", err)
	}

	return members, scanTime, nil
}

// parameterHash is the stable hash over a run's scope the queue collection
// is keyed by, so two invocations with the same scope find and extend the
// same collection instead of rescanning.
func parameterHash(opts RunOptions) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", opts.SourceFilter, opts.FromDate.Truncate(time.Second).UTC())))
	return hex.EncodeToString(sum[:])[:16]
}

// assemble builds the Solr document for memberID, or reports it as a
// deletion (deleteID set) when the underlying record or group has been
// removed. A nil doc and empty deleteID means the member contributed
// nothing (e.g. an unconfigured source) and should be silently skipped.
func (p *Pipeline) assemble(ctx context.Context, memberID string, sources map[string]SourceConfig) (map[string][]string, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "solrupdate.Pipeline.assemble")
	defer span.End()

	if g, err := p.groups.GetByID(ctx, memberID); err != nil {
		return nil, "", fmt.Errorf("load group %s: %w", memberID, err)
	} else if g != nil {
		if g.Deleted {
			return nil, g.ID, nil
		}
		memberRecs, err := p.records.ListByIDs(ctx, g.IDs)
		if err != nil {
			return nil, "", fmt.Errorf("load group %s members: %w", memberID, err)
		}
		live := make([]store.Record, 0, len(memberRecs))
		for _, rec := range memberRecs {
			if !rec.Deleted {
				live = append(live, rec)
			}
		}
		if len(live) == 0 {
			return nil, g.ID, nil
		}
		doc, err := p.buildGroupDoc(ctx, g.ID, live, sources)
		return doc, "", err
	}

	rec, err := p.records.GetByID(ctx, memberID)
	if err != nil {
		return nil, "", fmt.Errorf("load record %s: %w", memberID, err)
	}
	if rec == nil {
		return nil, memberID, nil
	}
	if rec.Deleted {
		return nil, rec.ID, nil
	}
	sc, ok := sources[rec.SourceID]
	if !ok {
		return nil, "", nil
	}
	doc, err := p.buildPlainDoc(ctx, rec, sc)
	return doc, "", err
}

// buildPlainDoc reconstructs the driver a record was ingested through from
// its stored payload, optionally folds its component parts into it, and
// finalizes the resulting document.
func (p *Pipeline) buildPlainDoc(ctx context.Context, rec *store.Record, sc SourceConfig) (map[string][]string, error) {
	d, err := driver.New(rec.Format, []byte(rec.Payload()), rec.OAIID, rec.SourceID)
	if err != nil {
		return nil, fmt.Errorf("reconstruct driver for %s: %w", rec.ID, err)
	}

	if sc.MergeComponents {
		parts, err := p.records.ListByHostRecordID(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("list component parts of %s: %w", rec.ID, err)
		}
		if len(parts) > 0 {
			sortByComponentSuffix(parts)
			componentDrivers := make([]driver.Driver, 0, len(parts))
			for _, part := range parts {
				if part.Deleted {
					continue
				}
				pd, err := driver.New(part.Format, []byte(part.Payload()), part.OAIID, part.SourceID)
				if err != nil {
					return nil, fmt.Errorf("reconstruct component driver for %s: %w", part.ID, err)
				}
				componentDrivers = append(componentDrivers, pd)
			}
			if len(componentDrivers) > 0 {
				if _, err := d.MergeComponentParts(componentDrivers); err != nil {
					return nil, fmt.Errorf("merge component parts into %s: %w", rec.ID, err)
				}
			}
		}
	}

	fields, err := d.ToSolrArray()
	if err != nil {
		return nil, fmt.Errorf("toSolrArray for %s: %w", rec.ID, err)
	}
	return p.finalizeDoc(ctx, rec.ID, rec.SourceID, d, fields, sc)
}

// buildGroupDoc combines every live member's own driver output into a
// single merged document: multi-valued fields (per sc.MultiValuedFields)
// union across members in a stable order, single-valued fields take the
// first non-empty value encountered. The earliest-created live member's
// source config supplies the Field Mapper/Enrichment/default-field settings
// for the merged document, since those are configured per source and a
// merged document necessarily spans several.
func (p *Pipeline) buildGroupDoc(ctx context.Context, groupID string, members []store.Record, sources map[string]SourceConfig) (map[string][]string, error) {
	sort.Slice(members, func(i, j int) bool { return members[i].Created.Before(members[j].Created) })

	combined := make(map[string][]string)
	var representative *store.Record
	var representativeDriver driver.Driver
	var representativeConfig SourceConfig

	for i := range members {
		m := &members[i]
		sc, ok := sources[m.SourceID]
		if !ok {
			continue
		}
		d, err := driver.New(m.Format, []byte(m.Payload()), m.OAIID, m.SourceID)
		if err != nil {
			return nil, fmt.Errorf("reconstruct driver for group member %s: %w", m.ID, err)
		}
		if representative == nil {
			representative = m
			representativeDriver = d
			representativeConfig = sc
		}

		fields, err := d.ToSolrArray()
		if err != nil {
			return nil, fmt.Errorf("toSolrArray for group member %s: %w", m.ID, err)
		}
		for field, vals := range fields {
			if len(vals) == 0 {
				continue
			}
			if sc.MultiValuedFields[field] {
				combined[field] = appendUnique(combined[field], vals...)
			} else if _, exists := combined[field]; !exists {
				combined[field] = vals
			}
		}
	}
	if representative == nil {
		return nil, fmt.Errorf("group %s has no member from a configured source", groupID)
	}
	combined["merged_boolean"] = []string{"true"}

	return p.finalizeDoc(ctx, groupID, representative.SourceID, representativeDriver, combined, representativeConfig)
}

// finalizeDoc applies the Field Mapper, then Enrichment, drops empty
// values, and sets the document's identity and default fields.
func (p *Pipeline) finalizeDoc(ctx context.Context, id, sourceID string, d driver.Driver, doc map[string][]string, sc SourceConfig) (map[string][]string, error) {
	if sc.Mapper != nil {
		for field, vals := range sc.Mapper.MapValues(toAnyMap(doc)) {
			doc[field] = vals
		}
	}
	if p.enrich != nil && len(sc.Enrichers) > 0 {
		if err := p.enrich.Run(ctx, sourceID, d, doc, sc.Enrichers); err != nil {
			return nil, fmt.Errorf("enrich %s: %w", id, err)
		}
	}

	dropEmptyValues(doc)

	now := time.Now().UTC().Format(time.RFC3339)
	doc["id"] = []string{id}
	doc["first_indexed"] = []string{now}
	doc["last_indexed"] = []string{now}
	setDefault(doc, "recordtype", sc.RecordType)
	setDefault(doc, "institution", sc.Institution)
	setDefault(doc, "collection", sc.Collection)
	if sc.BuildingHierarchy {
		explodeBuilding(doc, sc.Institution)
	}

	return doc, nil
}
