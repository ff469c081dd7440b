package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
)

// ReplayError reports where a serial replay stopped so it can be restarted.
type ReplayError struct {
	Completed int // statements imported before the failing batch
	Err       error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("failed to import at %d: %v", e.Completed, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Replay imports the whole dump at path serially, starting after the first
// start statements. Comments do not count towards start, but section markers
// seen while skipping still apply. The first failed batch aborts the replay.
func (im *Importer) Replay(ctx context.Context, path string, start int) (*Summary, error) {
	began := time.Now()
	sum := &Summary{}
	defer func() { sum.Elapsed = time.Since(began) }()

	f, err := os.Open(path)
	if err != nil {
		return sum, fmt.Errorf("failed to open dump: %w", err)
	}
	defer func() { _ = f.Close() }()

	im.enter(PhaseIndexing)
	totalCount, err := countStatements(f)
	if err != nil {
		return sum, err
	}
	sum.Total = totalCount
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return sum, fmt.Errorf("failed to rewind dump: %w", err)
	}

	entry := im.progress.Add("total", totalCount)
	defer im.progress.Remove(entry)

	b := dump.NewBuilder(dump.NewLexer(f), dump.Definitions(dump.InitialTable),
		dump.WithAnnotationHandler(entry.SetStatus))

	if start > 0 {
		n, err := b.Skip(start)
		if err != nil {
			return sum, fmt.Errorf("failed to skip to %d: %w", start, err)
		}
		sum.Skipped = n
		entry.SetCompleted(n)
		im.logger.Info("skipped statements", "count", n, "section", b.Section().String())
	}

	im.enter(PhaseTables)
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		batch, err := b.NextBatch(im.cfg.BatchBytes)
		if err != nil {
			return sum, &ReplayError{Completed: b.Consumed() - batch.Len(), Err: err}
		}

		if batch.Len() > 0 {
			entry.SetStatus(fmt.Sprintf("Importing %s with %d statements and %s.",
				batch.Section, batch.Len(), humanize.Bytes(uint64(batch.Bytes))))

			base := b.Consumed() - batch.Len()
			ref := batchRef{table: batch.Section.Table, base: base}
			if err := im.importBatch(ctx, ref, batch.Statements); err != nil {
				return sum, &ReplayError{Completed: base, Err: err}
			}
			sum.Imported += batch.Len()
			sum.Batches++
			entry.Advance(batch.Len())

			if im.checkpoints != nil {
				if err := im.checkpoints.SaveReplayProgress(ctx, im.cfg.Source, b.Consumed(), totalCount); err != nil {
					return sum, err
				}
			}
		}

		if batch.Stop == dump.StopEOF {
			break
		}
	}

	im.enter(PhaseDone)
	im.logger.Info("replay finished", "imported", sum.Imported, "skipped", sum.Skipped, "batches", sum.Batches)
	return sum, nil
}

func countStatements(r io.Reader) (int, error) {
	lx := dump.NewLexer(r)
	n := 0
	for {
		tok, err := lx.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to count statements: %w", err)
		}
		if tok.IsQuery() {
			n++
		}
	}
}
