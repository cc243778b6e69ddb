// Package dedup implements the Dedup Engine: blocking-key candidate
// generation, the pairwise match predicate, equivalence-class (Dedup
// Group) maintenance, and the background consistency check, grounded on
// the reference repository's rule-based match engine and merge-cluster
// dispatcher but restated over the simpler title/ISBN/author rule set this
// system needs rather than a configurable rule table.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/driver"
	"github.com/Ramsey-B/recordmanager/internal/normalize"
	"github.com/Ramsey-B/recordmanager/internal/rmerror"
	"github.com/Ramsey-B/recordmanager/internal/store"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// Config tunes candidate generation and the match predicate's tolerances.
type Config struct {
	CandidateCapPerKey      int           // keys producing more candidates than this are skipped for the pass
	TooManyCacheSize        int           // bounded LRU size for skipped keys
	TooManyTTL              time.Duration // how long a key stays flagged
	TitleLevenshteinMaxPct  float64       // max scaled edit distance to still call titles equal (default 0.10)
	AuthorLevenshteinMaxPct float64       // max scaled edit distance to still call authors compatible (default 0.20)
	YearTolerance           int           // max |year diff| to still match (default 1)
	PageCountTolerance      int           // max |page diff| to still match (default 10)
}

// DefaultConfig returns the tolerances named in the dedup engine's design.
func DefaultConfig() Config {
	return Config{
		CandidateCapPerKey:      1000,
		TooManyCacheSize:        20000,
		TooManyTTL:              24 * time.Hour,
		TitleLevenshteinMaxPct:  0.10,
		AuthorLevenshteinMaxPct: 0.20,
		YearTolerance:           1,
		PageCountTolerance:      10,
	}
}

// Engine implements candidate generation, pairwise matching, and group
// maintenance over the Record Store.
type Engine struct {
	records *store.RecordRepository
	groups  *store.GroupRepository
	logger  ectologger.Logger
	cfg     Config
	tooMany *tooManyCache
}

// New constructs an Engine.
func New(records *store.RecordRepository, groups *store.GroupRepository, logger ectologger.Logger, cfg Config) *Engine {
	return &Engine{
		records: records,
		groups:  groups,
		logger:  logger,
		cfg:     cfg,
		tooMany: newTooManyCache(cfg.TooManyCacheSize, cfg.TooManyTTL),
	}
}

// ProcessDirty drains every update_needed record for sourceID ("" drains
// every source) through ProcessRecord, continuing past per-record errors so
// one bad record's features don't stall the rest of the batch. It returns
// the number of records processed and the first error encountered, if any.
func (e *Engine) ProcessDirty(ctx context.Context, sourceID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.ProcessDirty")
	defer span.End()

	dirty, err := e.records.ListUpdateNeeded(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	var firstErr error
	for i := range dirty {
		if _, err := e.ProcessRecord(ctx, &dirty[i]); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": dirty[i].ID}).Warn("dedup: failed to process record")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return len(dirty), firstErr
}

// ProcessRecord runs one dirty record through candidate generation,
// matching, and group maintenance, and reports the resulting (possibly
// unchanged) dedup group id, if any.
func (e *Engine) ProcessRecord(ctx context.Context, rec *store.Record) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.ProcessRecord")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"record_id": rec.ID, "source_id": rec.SourceID})

	if rec.IsComponentPart() || rec.Deleted {
		return "", nil
	}

	features, err := decodeFeatures(rec)
	if err != nil {
		return "", fmt.Errorf("%w: decode features for %s", rmerror.ErrInvariantViolation, rec.ID)
	}

	candidates, err := e.generateCandidates(ctx, rec)
	if err != nil {
		return "", err
	}

	for _, candidate := range candidates {
		candidateFeatures, err := decodeFeatures(&candidate)
		if err != nil {
			log.WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Warn("skipping candidate with unreadable features")
			continue
		}
		if !e.isMatch(features, candidateFeatures) {
			continue
		}

		if candidate.DedupID != nil && (rec.DedupID == nil || *rec.DedupID != *candidate.DedupID) {
			conflict, err := e.groupHasOtherSource(ctx, *candidate.DedupID, rec.SourceID, candidate.ID)
			if err != nil {
				return "", err
			}
			if conflict {
				// G already holds a record from R's source; a group may never
				// carry two records from the same source, so this candidate is
				// rejected and the search continues rather than merging into G.
				continue
			}
		}

		groupID, err := e.merge(ctx, rec, &candidate)
		if err != nil {
			return "", err
		}
		if err := e.mergeComponentParts(ctx, rec, &candidate); err != nil {
			return "", err
		}
		return groupID, nil
	}

	// No match: clear any stale group membership, leave update_needed=false.
	if rec.DedupID != nil {
		if err := e.Detach(ctx, rec.ID); err != nil {
			return "", err
		}
	}
	if err := e.records.ClearUpdateNeeded(ctx, rec.ID); err != nil {
		return "", err
	}
	return "", nil
}

// generateCandidates queries for candidate records sharing a blocking key
// with rec, trying ISBN keys first and title keys second; a key producing
// more than cfg.CandidateCapPerKey results is flagged in the too-many set
// and skipped for the remainder of this pass.
func (e *Engine) generateCandidates(ctx context.Context, rec *store.Record) ([]store.Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.generateCandidates")
	defer span.End()

	var out []store.Record
	seen := make(map[string]struct{})

	tryKeys := func(column string, keys []string) error {
		for _, key := range keys {
			cacheKey := column + ":" + key
			if e.tooMany.IsTooMany(cacheKey) {
				continue
			}
			matches, err := e.records.ListCandidatesByKey(ctx, column, []string{key}, rec.SourceID)
			if err != nil {
				return err
			}
			if len(matches) > e.cfg.CandidateCapPerKey {
				e.tooMany.Flag(cacheKey)
				continue
			}
			for _, m := range matches {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
				out = append(out, m)
			}
		}
		return nil
	}

	if err := tryKeys("isbn_keys", rec.ISBNKeys); err != nil {
		return nil, err
	}
	if err := tryKeys("title_keys", rec.TitleKeys); err != nil {
		return nil, err
	}
	return out, nil
}

// isMatch implements the pairwise match predicate. A shared ISBN
// short-circuits straight to true.
func (e *Engine) isMatch(a, b driver.Features) bool {
	if a.Format != b.Format {
		return false
	}

	if isbnIntersects, isbnCompatible := compareISBNs(a.ISBNs, b.ISBNs); isbnIntersects {
		return true
	} else if !isbnCompatible {
		return false
	}

	if len(a.ISSNs) > 0 && len(b.ISSNs) > 0 && !stringSetsIntersect(a.ISSNs, b.ISSNs) {
		return false
	}

	if a.HasPublicationYear && b.HasPublicationYear {
		diff := a.PublicationYear - b.PublicationYear
		if diff < -e.cfg.YearTolerance || diff > e.cfg.YearTolerance {
			return false
		}
	}

	if a.HasPageCount && b.HasPageCount {
		diff := a.PageCount - b.PageCount
		if diff < -e.cfg.PageCountTolerance || diff > e.cfg.PageCountTolerance {
			return false
		}
	}

	if a.SeriesISSN != "" && b.SeriesISSN != "" {
		if a.SeriesISSN != b.SeriesISSN || a.SeriesNumbering != b.SeriesNumbering {
			return false
		}
	}

	if a.Title == "" || b.Title == "" {
		return false
	}
	if !scaledMatch(a.Title, b.Title, e.cfg.TitleLevenshteinMaxPct) {
		return false
	}

	return authorsCompatible(a.MainAuthor, b.MainAuthor, e.cfg.AuthorLevenshteinMaxPct)
}

// compareISBNs returns (intersects, compatible): intersects is true if the
// two sets share at least one ISBN (the match short-circuit); compatible is
// true if there is no outright mismatch between two non-empty sets that
// fail to intersect (i.e. at least one side is empty). Both sets are reduced
// to digits (and X) first, and ISBN-10s are promoted to ISBN-13, so the two
// forms of the same ISBN intersect.
func compareISBNs(a, b []string) (intersects bool, compatible bool) {
	promote := func(in []string) []string {
		out := make([]string, len(in))
		for i, v := range in {
			out[i] = normalize.ISBNKey(v)
			if len(out[i]) == 10 {
				core, sum := "978"+out[i][:9], 0
				for j, r := range core {
					sum += int(r-'0') * (1 + 2*(j%2))
				}
				out[i] = core + strconv.Itoa((10-sum%10)%10)
			}
		}
		return out
	}
	a, b = promote(a), promote(b)
	if stringSetsIntersect(a, b) {
		return true, true
	}
	if len(a) == 0 || len(b) == 0 {
		return false, true
	}
	return false, false
}

func stringSetsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// scaledMatch compares up to the first 255 normalized characters of a and b
// and reports whether the edit distance, scaled by the compared length, is
// within maxPct.
func scaledMatch(a, b string, maxPct float64) bool {
	a = truncate(strings.ToLower(strings.TrimSpace(a)), 255)
	b = truncate(strings.ToLower(strings.TrimSpace(b)), 255)
	similarity := levenshteinSimilarity(a, b)
	return (1 - similarity) <= maxPct
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// authorsCompatible accepts either a surname-plus-initial match ("Knuth, D"
// vs "Knuth, Donald") or a scaled Levenshtein match within maxPct.
func authorsCompatible(a, b string, maxPct float64) bool {
	if a == "" || b == "" {
		return false
	}
	if surnameInitialMatch(a, b) {
		return true
	}
	return scaledMatch(a, b, maxPct)
}

func surnameInitialMatch(a, b string) bool {
	surnameA, initialA := surnameAndInitial(a)
	surnameB, initialB := surnameAndInitial(b)
	if surnameA == "" || surnameB == "" {
		return false
	}
	return strings.EqualFold(surnameA, surnameB) && strings.EqualFold(initialA, initialB)
}

// surnameAndInitial splits "Surname, Given" (or a bare "Surname") into a
// surname and the first letter of the given name.
func surnameAndInitial(name string) (string, string) {
	parts := strings.SplitN(name, ",", 2)
	surname := strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return surname, ""
	}
	given := strings.TrimSpace(parts[1])
	if given == "" {
		return surname, ""
	}
	return surname, given[:1]
}

func decodeFeatures(rec *store.Record) (driver.Features, error) {
	var f driver.Features
	if rec.FeaturesJSON == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(rec.FeaturesJSON), &f); err != nil {
		return f, err
	}
	return f, nil
}

// merge implements group maintenance's "Merge" case: R matches candidate C.
func (e *Engine) merge(ctx context.Context, rec, candidate *store.Record) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.merge")
	defer span.End()

	if candidate.DedupID != nil {
		group, err := e.groups.GetByID(ctx, *candidate.DedupID)
		if err != nil {
			return "", err
		}
		if group == nil {
			return "", fmt.Errorf("%w: group %s referenced by record %s does not exist", rmerror.ErrInvariantViolation, *candidate.DedupID, candidate.ID)
		}

		if err := e.groups.SetMembers(ctx, group.ID, appendUnique(group.IDs, rec.ID)); err != nil {
			return "", err
		}
		if err := e.records.SetDedupID(ctx, rec.ID, group.ID); err != nil {
			return "", err
		}
		if err := e.records.ClearUpdateNeeded(ctx, rec.ID); err != nil {
			return "", err
		}
		return group.ID, nil
	}

	group, err := e.groups.Create(ctx, []string{rec.ID, candidate.ID})
	if err != nil {
		return "", err
	}
	if err := e.records.SetDedupID(ctx, rec.ID, group.ID); err != nil {
		return "", err
	}
	if err := e.records.SetDedupID(ctx, candidate.ID, group.ID); err != nil {
		return "", err
	}
	if err := e.records.ClearUpdateNeeded(ctx, rec.ID); err != nil {
		return "", err
	}
	if err := e.records.ClearUpdateNeeded(ctx, candidate.ID); err != nil {
		return "", err
	}
	return group.ID, nil
}

// mergeComponentParts implements "Component-part co-dedup": once host and
// candidate have merged into a group, their component parts are ordered and
// matched as a full sequence, and only a complete alignment is merged,
// pair by pair, through the same group-maintenance logic as a top-level
// merge. A partial alignment leaves every component part unduplicated.
func (e *Engine) mergeComponentParts(ctx context.Context, host, candidate *store.Record) error {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.mergeComponentParts")
	defer span.End()

	hostChildren, err := e.records.ListByHostRecordID(ctx, host.ID)
	if err != nil {
		return err
	}
	candidateChildren, err := e.records.ListByHostRecordID(ctx, candidate.ID)
	if err != nil {
		return err
	}

	aParts, aByID, err := componentParts(hostChildren)
	if err != nil {
		return err
	}
	bParts, bByID, err := componentParts(candidateChildren)
	if err != nil {
		return err
	}

	for _, pair := range e.MatchComponentSequences(aParts, bParts) {
		if _, err := e.merge(ctx, aByID[pair[0]], bByID[pair[1]]); err != nil {
			return err
		}
	}
	return nil
}

// componentParts decodes the dedup features of every non-deleted record in
// recs, for use as one side of MatchComponentSequences.
func componentParts(recs []store.Record) ([]ComponentPart, map[string]*store.Record, error) {
	parts := make([]ComponentPart, 0, len(recs))
	byID := make(map[string]*store.Record, len(recs))
	for i := range recs {
		rec := &recs[i]
		if rec.Deleted {
			continue
		}
		features, err := decodeFeatures(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: decode features for %s", rmerror.ErrInvariantViolation, rec.ID)
		}
		parts = append(parts, ComponentPart{ID: rec.ID, Features: features})
		byID[rec.ID] = rec
	}
	return parts, byID, nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Detach implements group maintenance's "Split/detach" case: remove
// recordID from its group; if membership collapses below two distinct
// sources, the group is marked deleted and the remaining member is made
// update_needed so a later pass can find it a new match.
func (e *Engine) Detach(ctx context.Context, recordID string) error {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.Detach")
	defer span.End()

	rec, err := e.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil || rec.DedupID == nil {
		return nil
	}

	group, err := e.groups.GetByID(ctx, *rec.DedupID)
	if err != nil {
		return err
	}
	if group == nil {
		return e.records.SetDedupID(ctx, recordID, "")
	}

	remaining := removeID(group.IDs, recordID)
	if err := e.groups.SetMembers(ctx, group.ID, remaining); err != nil {
		return err
	}
	if err := e.records.SetDedupID(ctx, recordID, ""); err != nil {
		return err
	}

	sourceOf, err := e.sourceOfMembers(ctx, remaining)
	if err != nil {
		return err
	}
	if group.DistinctSourceCount(sourceOf) >= 2 {
		return nil
	}

	if err := e.groups.MarkDeleted(ctx, group.ID); err != nil {
		return err
	}
	for _, id := range remaining {
		if err := e.records.SetDedupID(ctx, id, ""); err != nil {
			return err
		}
		if err := e.markUpdateNeeded(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markUpdateNeeded(ctx context.Context, recordID string) error {
	rec, err := e.records.GetByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.UpdateNeeded = true
	return e.records.Upsert(ctx, rec)
}

// groupHasOtherSource reports whether group groupID already has a member,
// other than excludeID, whose source_id is sourceID.
func (e *Engine) groupHasOtherSource(ctx context.Context, groupID, sourceID, excludeID string) (bool, error) {
	group, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, err
	}
	if group == nil {
		return false, nil
	}

	sources, err := e.sourceOfMembers(ctx, group.IDs)
	if err != nil {
		return false, err
	}
	for id, src := range sources {
		if id != excludeID && src == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) sourceOfMembers(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		rec, err := e.records.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[id] = rec.SourceID
		}
	}
	return out, nil
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// RepairEntry describes one inconsistency found and fixed by CheckConsistency.
type RepairEntry struct {
	GroupID  string
	RecordID string
	Reason   string
}

// CheckConsistency walks every group and verifies, for each member id, that
// the referenced record exists, is non-deleted, and points its dedup_id
// back at this group. Stale ids are removed from the group and orphaned
// records have their dedup_id cleared; every repair is reported.
func (e *Engine) CheckConsistency(ctx context.Context, groups []store.DedupGroup) ([]RepairEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "dedup.Engine.CheckConsistency")
	defer span.End()

	var repairs []RepairEntry

	for _, group := range groups {
		if group.Deleted {
			continue
		}
		var validIDs []string
		for _, id := range group.IDs {
			rec, err := e.records.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			switch {
			case rec == nil:
				repairs = append(repairs, RepairEntry{GroupID: group.ID, RecordID: id, Reason: "record missing"})
			case rec.Deleted:
				if rec.DedupID != nil && *rec.DedupID == group.ID {
					if err := e.records.SetDedupID(ctx, id, ""); err != nil {
						return nil, err
					}
				}
				repairs = append(repairs, RepairEntry{GroupID: group.ID, RecordID: id, Reason: "record deleted"})
			case rec.DedupID == nil || *rec.DedupID != group.ID:
				repairs = append(repairs, RepairEntry{GroupID: group.ID, RecordID: id, Reason: "record dedup_id mismatch"})
			default:
				validIDs = append(validIDs, id)
			}
		}

		if len(validIDs) != len(group.IDs) {
			if err := e.groups.SetMembers(ctx, group.ID, validIDs); err != nil {
				return nil, err
			}
		}
	}

	return repairs, nil
}

// ComponentSuffix extracts the trailing numeric suffix of an id, used to
// derive a stable ordering for component-part co-dedup.
func ComponentSuffix(id string) (int, bool) {
	idx := strings.LastIndexAny(id, ".-_")
	if idx == -1 || idx == len(id)-1 {
		return 0, false
	}
	suffix := id[idx+1:]
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}
