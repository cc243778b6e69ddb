// Package harvest implements the per-source Harvester state machine:
// incremental OAI-PMH/Sierra polling with resumption tokens, full-set
// reconciliation for MetaLib-style sources, and the two deletion
// reconciliation strategies a source uses when its upstream does not
// report deletes directly. The wire protocol for any one source type is a
// pluggable Fetcher, grounded the same way record Drivers are pluggable.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/recordmanager/internal/ingest"
	"github.com/Ramsey-B/recordmanager/internal/rmerror"
	"github.com/Ramsey-B/recordmanager/internal/store"
	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// State is a harvest run's lifecycle stage.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StatePaused   State = "paused"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Entry is one (oai_id, deleted, payload) triple a Fetcher yields.
type Entry struct {
	OAIID   string
	Deleted bool
	Payload []byte
}

// Page is one page of an incremental fetch: its entries, and, if the
// upstream returned a resumption token, enough to continue the fetch.
type Page struct {
	Entries   []Entry
	NextToken string
	HasMore   bool
}

// Fetcher is implemented once per incremental source type (oai-pmh,
// sierra): the wire protocol and XML/JSON parsing it takes to produce a
// Page is this package's pluggable collaborator, not its concern.
type Fetcher interface {
	FetchPage(ctx context.Context, from, until time.Time, token string) (Page, error)
}

// FullSetFetcher is implemented by full-reconciliation source types (sfx,
// metalib, metalib_export): it returns the complete current set, keyed by
// the upstream's own id.
type FullSetFetcher interface {
	FetchAll(ctx context.Context) (map[string][]byte, error)
}

// DeletionMode selects how a source's vanished records are reconciled when
// the upstream does not report deletes directly.
type DeletionMode string

const (
	DeletionModeNone            DeletionMode = ""
	DeletionModeListIdentifiers DeletionMode = "list_identifiers"
	DeletionModeFullReharvest   DeletionMode = "full_reharvest"
)

// Config is a harvest run's tunables; all fields have sensible zero values
// except MaxTries, which must be set to enable retrying.
type Config struct {
	SafetyOffset               time.Duration
	MaxTries                   int
	RetryWait                  time.Duration
	MaxBackoff                 time.Duration
	MinListIdentifiersInterval time.Duration
}

// DefaultConfig mirrors the retry policy §4.4 names explicitly.
func DefaultConfig() Config {
	return Config{
		MaxTries:                   5,
		RetryWait:                  time.Second,
		MaxBackoff:                 30 * time.Second,
		MinListIdentifiersInterval: 24 * time.Hour,
	}
}

// Result summarizes one harvest run.
type Result struct {
	State          State
	RecordsWritten int
	RecordsDeleted int64
	NextToken      string // non-empty iff paused awaiting a follow-up run
}

// Harvester drives one source's harvest lifecycle.
type Harvester struct {
	ingester *ingest.Engine
	state    *store.StateRepository
	records  *store.RecordRepository
	logger   ectologger.Logger
	cfg      Config
}

// New constructs a Harvester.
func New(ingester *ingest.Engine, state *store.StateRepository, records *store.RecordRepository, logger ectologger.Logger, cfg Config) *Harvester {
	return &Harvester{ingester: ingester, state: state, records: records, logger: logger, cfg: cfg}
}

// RunOptions overrides the defaults a harvest run otherwise reads from state.
type RunOptions struct {
	From       *time.Time
	Until      *time.Time
	Resumption string
	Mode       DeletionMode
}

// RunIncremental executes one incremental OAI-PMH/Sierra harvest: repeated
// FetchPage calls under the §4.4 retry policy, forwarding each yielded
// entry to storeRecord, persisting or clearing the resumption token, and
// committing the harvest watermark only on full completion.
func (h *Harvester) RunIncremental(ctx context.Context, src ingest.SourceConfig, fetcher Fetcher, opts RunOptions) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "harvest.Harvester.RunIncremental")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{"source_id": src.SourceID})

	from, until, err := h.resolveWindow(ctx, src.SourceID, opts)
	if err != nil {
		return Result{State: StateFailed}, err
	}

	token := opts.Resumption
	if token == "" {
		if stored, ok, err := h.state.Get(ctx, store.ResumptionTokenKey(src.SourceID)); err == nil && ok {
			token = stored
		}
	}

	if opts.Mode == DeletionModeListIdentifiers {
		if due, err := h.listIdentifiersDue(ctx, src.SourceID); err != nil {
			return Result{State: StateFailed}, err
		} else if due {
			if err := h.records.ClearMarksBySource(ctx, src.SourceID); err != nil {
				return Result{State: StateFailed}, err
			}
		}
	}

	var written int
	for {
		page, err := h.fetchPageWithRetry(ctx, fetcher, from, until, token)
		if err != nil {
			log.WithError(err).Error("harvest fetch failed, state not advanced")
			return Result{State: StateFailed, RecordsWritten: written}, err
		}

		for _, entry := range page.Entries {
			if opts.Mode == DeletionModeListIdentifiers && !entry.Deleted {
				if err := h.records.MarkSeenByOAIID(ctx, src.SourceID, entry.OAIID); err != nil {
					return Result{State: StateFailed, RecordsWritten: written}, err
				}
			}
			n, err := h.ingester.StoreRecord(ctx, src, entry.OAIID, entry.Deleted, entry.Payload)
			if err != nil {
				log.WithError(err).WithFields(map[string]any{"oai_id": entry.OAIID}).Warn("failed to store harvested record, continuing")
				continue
			}
			written += n
		}

		if !page.HasMore {
			break
		}

		token = page.NextToken
		if err := h.state.Set(ctx, store.ResumptionTokenKey(src.SourceID), token); err != nil {
			return Result{State: StatePaused, RecordsWritten: written, NextToken: token}, err
		}
	}

	if err := h.state.Set(ctx, store.ResumptionTokenKey(src.SourceID), ""); err != nil {
		return Result{State: StateFailed, RecordsWritten: written}, err
	}
	if err := h.state.Set(ctx, store.HarvestDateKey(src.SourceID), until.Format(time.RFC3339)); err != nil {
		return Result{State: StateFailed, RecordsWritten: written}, err
	}

	result := Result{State: StateDone, RecordsWritten: written}

	switch opts.Mode {
	case DeletionModeListIdentifiers:
		deleted, err := h.records.DeleteUnmarked(ctx, src.SourceID)
		if err != nil {
			return result, err
		}
		result.RecordsDeleted = deleted
		if err := h.state.Set(ctx, store.DeletionProcessingKey(src.SourceID), time.Now().UTC().Format(time.RFC3339)); err != nil {
			return result, err
		}
	case DeletionModeFullReharvest:
		if written > 0 {
			deleted, err := h.records.DeleteStale(ctx, src.SourceID, from)
			if err != nil {
				return result, err
			}
			result.RecordsDeleted = deleted
		} else {
			log.Warn("harvest returned zero records, skipping staleness deletion sweep")
		}
	}

	return result, nil
}

// RunFullSet executes the MetaLib-style full-set reconciliation: fetch the
// complete upstream set, diff it against the store by id, run added/changed
// records through ingestion, and soft-delete records missing from the set.
func (h *Harvester) RunFullSet(ctx context.Context, src ingest.SourceConfig, fetcher FullSetFetcher) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "harvest.Harvester.RunFullSet")
	defer span.End()

	fetched, err := fetcher.FetchAll(ctx)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("full-set fetch: %w", err)
	}

	existing, err := h.records.ListBySource(ctx, src.SourceID)
	if err != nil {
		return Result{State: StateFailed}, err
	}
	existingPayload := make(map[string]string, len(existing))
	for _, rec := range existing {
		existingPayload[rec.OAIID] = rec.Payload()
	}

	written := 0
	for id, payload := range fetched {
		if existingPayload[id] == string(payload) {
			continue // unchanged
		}
		n, err := h.ingester.StoreRecord(ctx, src, id, false, payload)
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Warn("failed to store full-set record, continuing")
			continue
		}
		written += n
	}

	result := Result{State: StateDone, RecordsWritten: written}
	if len(fetched) == 0 {
		h.logger.WithContext(ctx).Warn("full-set harvest returned zero records, skipping deletion sweep")
		return result, nil
	}

	for _, rec := range existing {
		if _, ok := fetched[rec.OAIID]; ok {
			continue
		}
		if err := h.records.MarkDeleted(ctx, rec.ID); err != nil {
			return result, err
		}
		result.RecordsDeleted++
	}
	return result, nil
}

// resolveWindow determines the [from, until) window per §4.4: from defaults
// to the stored watermark (minus SafetyOffset), until defaults to now
// (minus SafetyOffset).
func (h *Harvester) resolveWindow(ctx context.Context, sourceID string, opts RunOptions) (time.Time, time.Time, error) {
	until := time.Now().UTC().Add(-h.cfg.SafetyOffset)
	if opts.Until != nil {
		until = *opts.Until
	}

	if opts.From != nil {
		return *opts.From, until, nil
	}

	stored, ok, err := h.state.Get(ctx, store.HarvestDateKey(sourceID))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		return time.Time{}, until, nil
	}
	from, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid harvest watermark %q: %v", rmerror.ErrConfig, stored, err)
	}
	return from.Add(-h.cfg.SafetyOffset), until, nil
}

// listIdentifiersDue reports whether enough time has passed since the last
// ListIdentifiers deletion-reconciliation run.
func (h *Harvester) listIdentifiersDue(ctx context.Context, sourceID string) (bool, error) {
	stored, ok, err := h.state.Get(ctx, store.DeletionProcessingKey(sourceID))
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return true, nil
	}
	return time.Since(last) >= h.cfg.MinListIdentifiersInterval, nil
}

// fetchPageWithRetry wraps one FetchPage call in the §4.4 retry policy:
// exponential backoff from RetryWait doubling to MaxBackoff, up to MaxTries
// attempts, with rmerror.ErrParse (the 404 equivalent — malformed/missing
// upstream response) treated as non-retryable.
func (h *Harvester) fetchPageWithRetry(ctx context.Context, fetcher Fetcher, from, until time.Time, token string) (Page, error) {
	maxTries := h.cfg.MaxTries
	if maxTries <= 0 {
		maxTries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxTries; attempt++ {
		page, err := fetcher.FetchPage(ctx, from, until, token)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if errors.Is(err, rmerror.ErrParse) {
			return Page{}, err
		}
		if attempt == maxTries {
			break
		}

		delay := backoffDelay(h.cfg.RetryWait, h.cfg.MaxBackoff, attempt)
		h.logger.WithContext(ctx).Warnf("harvest: retrying fetch in %s (attempt %d/%d): %v", delay, attempt, maxTries, err)

		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return Page{}, fmt.Errorf("%w: fetch exhausted %d attempts: %v", rmerror.ErrTransientNetwork, maxTries, lastErr)
}

// backoffDelay computes an exponential delay from initial, doubling each
// attempt and capped at max.
func backoffDelay(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay > max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
