package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/dumpimport/internal/progress"
	"github.com/leapstack-labs/dumpimport/internal/state"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
	"golang.org/x/sync/errgroup"
)

// segmentResult is what one worker reports back to the orchestrator.
type segmentResult struct {
	segment  int
	table    string
	imported int
	skipped  int
	batches  int
	err      error
}

// importSegments runs one worker per segment with at most Workers active.
// Workers never return an error to the group so a failing table does not stop
// its siblings. No new segment is started once ctx is done.
func (im *Importer) importSegments(ctx context.Context, path string, segments []dump.TableSegment, total *progress.Entry) []segmentResult {
	results := make([]segmentResult, len(segments))

	var g errgroup.Group
	g.SetLimit(im.cfg.Workers)

	records := recordNames(segments)

	var mu sync.Mutex
	scheduled := 0
	for i, seg := range segments {
		if ctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			r := im.importSegment(ctx, path, i, seg, records[i], total)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			if r.err != nil {
				im.logger.Error("table import failed", "table", seg.Name, "segment", i, "error", r.err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results[:scheduled]
}

// recordNames returns the DumpRecord name of each segment: the table name, or
// the table name and segment index when the table has several segments.
func recordNames(segments []dump.TableSegment) []string {
	seen := make(map[string]int, len(segments))
	for _, seg := range segments {
		seen[seg.Name]++
	}
	names := make([]string, len(segments))
	for i, seg := range segments {
		names[i] = seg.Name
		if seen[seg.Name] > 1 {
			names[i] = fmt.Sprintf("%s-%d", seg.Name, i)
		}
	}
	return names
}

// importSegment loads one table segment through its own file handle.
func (im *Importer) importSegment(ctx context.Context, path string, idx int, seg dump.TableSegment, record string, total *progress.Entry) segmentResult {
	res := segmentResult{segment: idx, table: seg.Name}
	if seg.Statements == 0 {
		return res
	}

	completed := 0
	if im.cfg.Resume && im.checkpoints != nil {
		p, err := im.checkpoints.TableProgress(ctx, im.cfg.Source, idx)
		if err != nil {
			res.err = err
			return res
		}
		if p.Table == seg.Name && p.Total == seg.Statements {
			completed = p.Completed
		}
		if completed >= seg.Statements {
			im.logger.Debug("table already imported, skipping", "table", seg.Name, "segment", idx)
			res.skipped = seg.Statements
			total.Advance(seg.Statements)
			return res
		}
	}

	f, err := os.Open(path)
	if err != nil {
		res.err = fmt.Errorf("failed to open dump: %w", err)
		return res
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(seg.Offset, io.SeekStart); err != nil {
		res.err = fmt.Errorf("failed to seek to %s at offset %d: %w", seg.Name, seg.Offset, err)
		return res
	}

	entry := im.progress.Add(seg.Name, seg.Statements)
	defer im.progress.Remove(entry)

	lx := dump.NewLexer(f, dump.WithBaseOffset(seg.Offset))
	b := dump.NewBuilder(lx, dump.Data(seg.Name),
		dump.WithLimit(seg.Statements),
		dump.WithAnnotationHandler(entry.SetStatus))

	if completed > 0 {
		n, err := b.Skip(completed)
		if err != nil {
			res.err = err
			return res
		}
		res.skipped = n
		entry.SetCompleted(n)
		total.Advance(n)
		im.logger.Info("resuming table", "table", seg.Name, "skipped", n)
	}

	for {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}

		batch, err := b.NextBatch(im.cfg.BatchBytes)
		if err != nil {
			res.err = fmt.Errorf("failed to read %s: %w", seg.Name, err)
			return res
		}

		if batch.Len() > 0 {
			entry.SetStatus(fmt.Sprintf("Importing %s with %d statements and %s.",
				batch.Section, batch.Len(), humanize.Bytes(uint64(batch.Bytes))))

			ref := batchRef{table: seg.Name, record: record, base: b.Consumed() - batch.Len()}
			if err := im.importBatch(ctx, ref, batch.Statements); err != nil {
				res.err = err
				return res
			}
			res.imported += batch.Len()
			res.batches++
			entry.Advance(batch.Len())
			total.Advance(batch.Len())

			if im.checkpoints != nil {
				p := state.TableProgress{Segment: idx, Table: seg.Name, Completed: b.Consumed(), Total: seg.Statements}
				if err := im.checkpoints.SaveTableProgress(ctx, im.cfg.Source, p); err != nil {
					res.err = err
					return res
				}
			}
		}

		if batch.Stop != dump.StopTarget || b.Done() {
			break
		}
	}

	im.logger.Debug("imported table",
		"table", seg.Name,
		"statements", res.imported,
		"batches", res.batches,
		"elapsed", entry.Elapsed())
	return res
}
