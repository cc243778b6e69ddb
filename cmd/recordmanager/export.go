package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/recordmanager/internal/store"
)

func newExportCmd() *cobra.Command {
	var (
		fileFlag       string
		deletedFlag    bool
		fromFlag       string
		skipFlag       int
		sourceFlag     string
		singleFlag     string
		xpathFlag      string
		sortDedupFlag  bool
		addDedupIDFlag bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored records to a file for inspection or reload",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if fileFlag == "" {
				return fmt.Errorf("--file is required")
			}
			if sourceFlag == "" && singleFlag == "" && fromFlag == "" {
				return fmt.Errorf("--source (or --single, or --from for every source) is required")
			}
			if xpathFlag != "" {
				// No XPath engine appears anywhere in the retrieval pack (see
				// DESIGN.md); --xpath is accepted for compatibility but every
				// record is written in full rather than narrowed to a subtree.
				a.logger.WithContext(ctx).Warnf("export: --xpath is not implemented; writing full records")
			}

			f, err := os.Create(fileFlag)
			if err != nil {
				return fmt.Errorf("create %s: %w", fileFlag, err)
			}
			defer f.Close()

			writeRecord := func(rec store.Record) error {
				body := rec.NormalizedData
				if body == "" {
					body = rec.OriginalData
				}
				if addDedupIDFlag && rec.DedupID != nil {
					body = fmt.Sprintf("<!-- dedup_id=%s -->\n%s", *rec.DedupID, body)
				}
				_, err := fmt.Fprintln(f, body)
				return err
			}

			// A full, unsorted, unskipped scan of one source (--source is
			// required on this path) streams page by page through the restartable id cursor
			// rather than materializing the whole result set; sort/skip need
			// the complete set in memory to rearrange it, so those still fall
			// back to loading everything up front.
			if fromFlag == "" && !sortDedupFlag && skipFlag == 0 && singleFlag == "" {
				written := 0
				err := a.records.Iterate(ctx, sourceFlag, store.DefaultIteratePageSize, func(page []store.Record) error {
					for _, rec := range page {
						if !deletedFlag && rec.Deleted {
							continue
						}
						if err := writeRecord(rec); err != nil {
							return fmt.Errorf("write %s: %w", fileFlag, err)
						}
						written++
					}
					return nil
				})
				if err != nil {
					return err
				}
				a.logger.WithContext(ctx).Infof("export: wrote %d record(s) to %s", written, fileFlag)
				return nil
			}

			recs, err := a.recordsToExport(ctx, sourceFlag, singleFlag, deletedFlag, fromFlag)
			if err != nil {
				return err
			}

			if sortDedupFlag {
				sort.Slice(recs, func(i, j int) bool {
					return dedupSortKey(recs[i]) < dedupSortKey(recs[j])
				})
			}
			if skipFlag > 0 && skipFlag < len(recs) {
				recs = recs[skipFlag:]
			}

			for _, rec := range recs {
				if err := writeRecord(rec); err != nil {
					return fmt.Errorf("write %s: %w", fileFlag, err)
				}
			}

			a.logger.WithContext(ctx).Infof("export: wrote %d record(s) to %s", len(recs), fileFlag)
			return nil
		}),
	}

	cmd.Flags().StringVar(&fileFlag, "file", "", "output file path (required)")
	cmd.Flags().BoolVar(&deletedFlag, "deleted", false, "include deleted records instead of excluding them")
	cmd.Flags().StringVar(&fromFlag, "from", "", "only records updated at or after this RFC3339 timestamp")
	cmd.Flags().IntVar(&skipFlag, "skip", 0, "skip this many records from the start of the result set")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "restrict export to one data source")
	cmd.Flags().StringVar(&singleFlag, "single", "", "export exactly one record by id")
	cmd.Flags().StringVar(&xpathFlag, "xpath", "", "unimplemented: no XPath engine in this build")
	cmd.Flags().BoolVar(&sortDedupFlag, "sort-dedup", false, "sort output by dedup group id")
	cmd.Flags().BoolVar(&addDedupIDFlag, "add-dedup-id", false, "prefix each exported record with its dedup group id")

	return cmd
}

func (a *app) recordsToExport(ctx context.Context, sourceID, single string, includeDeleted bool, from string) ([]store.Record, error) {
	if single != "" {
		rec, err := a.records.GetByID(ctx, single)
		if err != nil {
			return nil, err
		}
		return []store.Record{*rec}, nil
	}

	var (
		recs []store.Record
		err  error
	)
	if from != "" {
		fromTime, parseErr := time.Parse(time.RFC3339, from)
		if parseErr != nil {
			return nil, fmt.Errorf("--from: %w", parseErr)
		}
		recs, err = a.records.ListForSolrScan(ctx, sourceID, fromTime)
	} else if includeDeleted {
		recs, err = a.records.ListAllBySource(ctx, sourceID)
	} else {
		recs, err = a.records.ListBySource(ctx, sourceID)
	}
	if err != nil {
		return nil, err
	}

	if includeDeleted || from != "" {
		return recs, nil
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

func dedupSortKey(r store.Record) string {
	if r.DedupID != nil {
		return *r.DedupID
	}
	return r.ID
}
