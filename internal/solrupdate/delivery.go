package solrupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// batcher buffers documents produced by assemble and delivers them either to
// Solr (the normal path), to numbered files under a DumpPrefix, or — in
// compare mode — diffs each candidate against what Solr currently has
// indexed instead of writing anything.
type batcher struct {
	p    *Pipeline
	opts RunOptions

	docs             []map[string]any
	addedSinceCommit int
	batchIndex       int
	diffs            []map[string]any
}

func newBatcher(p *Pipeline, opts RunOptions) *batcher {
	return &batcher{p: p, opts: opts}
}

// add buffers doc (normal/dumpPrefix mode) or, in compare mode, fetches the
// currently-indexed document and reports whether it differs. added is true
// only when doc was accepted into the delivery batch.
func (b *batcher) add(ctx context.Context, doc map[string][]string) (added bool, diff bool, err error) {
	if b.opts.Compare {
		diff, err := b.compare(ctx, doc)
		return false, diff, err
	}

	b.docs = append(b.docs, toAnyDoc(doc))
	b.addedSinceCommit++
	if len(b.docs) >= b.p.cfg.MaxBatchRecords {
		if err := b.flushAdds(ctx); err != nil {
			return false, false, err
		}
	}
	return true, false, nil
}

// delete issues (or records) a deletion for id. Compare mode never deletes;
// it only reports diffs against the live index.
func (b *batcher) delete(ctx context.Context, id string) error {
	if b.opts.Compare {
		return nil
	}
	if b.opts.DumpPrefix != "" {
		return b.writeBatch(map[string]any{"delete": map[string]any{"id": id}})
	}
	return b.p.solr.DeleteByID(ctx, id)
}

// flushAdds delivers any buffered documents and, once MaxCommitInterval
// documents have been delivered since the last commit, issues one.
func (b *batcher) flushAdds(ctx context.Context) error {
	if len(b.docs) == 0 {
		return nil
	}
	if b.opts.DumpPrefix != "" {
		err := b.writeBatch(b.docs)
		b.docs = nil
		return err
	}

	if err := b.p.solr.Add(ctx, b.docs); err != nil {
		return fmt.Errorf("deliver batch of %d docs: %w", len(b.docs), err)
	}
	b.docs = nil

	if !b.opts.NoCommit && b.p.cfg.MaxCommitInterval > 0 && b.addedSinceCommit >= b.p.cfg.MaxCommitInterval {
		if err := b.p.solr.Commit(ctx); err != nil {
			return fmt.Errorf("intermediate commit: %w", err)
		}
		b.addedSinceCommit = 0
	}
	return nil
}

// flush delivers any remaining buffered documents and issues the final
// commit (unless NoCommit or a mode that never writes to Solr).
func (b *batcher) flush(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "solrupdate.batcher.flush")
	defer span.End()

	if err := b.flushAdds(ctx); err != nil {
		return err
	}
	if b.opts.Compare {
		if b.opts.DumpPrefix != "" && len(b.diffs) > 0 {
			return b.writeBatch(b.diffs)
		}
		return nil
	}
	if b.opts.DumpPrefix != "" || b.opts.NoCommit {
		return nil
	}
	if err := b.p.solr.Commit(ctx); err != nil {
		return fmt.Errorf("final commit: %w", err)
	}
	return nil
}

// compare fetches the currently-indexed document for doc's id and reports
// whether it differs, buffering the diff for writeBatch when a DumpPrefix
// is configured.
func (b *batcher) compare(ctx context.Context, doc map[string][]string) (bool, error) {
	id := doc["id"][0]
	existing, found, err := b.p.solr.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("compare fetch %s: %w", id, err)
	}
	if found && docEqualsIndexed(doc, existing) {
		return false, nil
	}
	if b.opts.DumpPrefix != "" {
		b.diffs = append(b.diffs, map[string]any{"id": id, "indexed": existing, "computed": toAnyDoc(doc)})
	}
	return true, nil
}

func (b *batcher) writeBatch(payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dump batch: %w", err)
	}
	b.batchIndex++
	path := fmt.Sprintf("%s.%04d.json", b.opts.DumpPrefix, b.batchIndex)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write dump batch %s: %w", path, err)
	}
	return nil
}

func toAnyDoc(doc map[string][]string) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// docEqualsIndexed reports whether computed matches what Solr currently has
// indexed, ignoring Solr's injected _version_ field.
func docEqualsIndexed(computed map[string][]string, indexed map[string]any) bool {
	normalized := make(map[string][]string, len(indexed))
	for field, raw := range indexed {
		if field == "_version_" {
			continue
		}
		normalized[field] = normalizeSolrValue(raw)
	}
	if len(normalized) != len(computed) {
		return false
	}
	for field, vals := range computed {
		if !equalStrings(normalized[field], vals) {
			return false
		}
	}
	return true
}

func normalizeSolrValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, len(val))
		for i, e := range val {
			out[i] = fmt.Sprintf("%v", e)
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
