// Package importer replays a dump into a sink. It imports every definition
// statement first, then loads table segments in parallel, each through its
// own positioned reader, or replays the whole file serially with resume.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leapstack-labs/dumpimport/internal/progress"
	"github.com/leapstack-labs/dumpimport/internal/sink"
	"github.com/leapstack-labs/dumpimport/internal/state"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
)

// Default tuning values.
const (
	DefaultWorkers = 10
	DefaultDumpDir = "data"
)

// Sink executes one batch as an atomic transaction.
type Sink interface {
	Import(ctx context.Context, statements []string) ([]sink.Result, error)
}

// Checkpoints persists import progress for resume.
type Checkpoints interface {
	DefinitionsDone(ctx context.Context, source string) (bool, error)
	MarkDefinitionsDone(ctx context.Context, source string, statements int) error
	TableProgress(ctx context.Context, source string, segment int) (state.TableProgress, error)
	SaveTableProgress(ctx context.Context, source string, p state.TableProgress) error
	SaveReplayProgress(ctx context.Context, source string, completed, total int) error
}

// Config tunes an Importer.
type Config struct {
	BatchBytes      int    // data batch target in bytes
	Workers         int    // concurrent table segments
	DumpDir         string // where failure records are written
	SecondaryPhrase string // marks cascade failures in sink errors
	Source          string // checkpoint key of the dump being imported
	Resume          bool   // skip work recorded in the checkpoints
}

func (c *Config) applyDefaults() {
	if c.BatchBytes <= 0 {
		c.BatchBytes = dump.DefaultBatchBytes
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.DumpDir == "" {
		c.DumpDir = DefaultDumpDir
	}
	if c.SecondaryPhrase == "" {
		c.SecondaryPhrase = DefaultSecondaryPhrase
	}
}

// Phase is the orchestrator state.
type Phase int

// Orchestrator phases.
const (
	PhaseIndexing Phase = iota
	PhaseDefinitions
	PhaseTables
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIndexing:
		return "indexing"
	case PhaseDefinitions:
		return "importing definitions"
	case PhaseTables:
		return "importing tables"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Summary describes a finished run.
type Summary struct {
	Total       int // statements in the dump
	Definitions int // definition statements imported
	Imported    int // statements imported by this run
	Skipped     int // statements skipped by resume
	Tables      int // segments processed
	Batches     int
	Failures    []TableFailure
	Elapsed     time.Duration
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// WithProgress sets the progress registry.
func WithProgress(reg *progress.Registry) Option {
	return func(im *Importer) {
		if reg != nil {
			im.progress = reg
		}
	}
}

// WithCheckpoints enables checkpointing.
func WithCheckpoints(cp Checkpoints) Option {
	return func(im *Importer) {
		im.checkpoints = cp
	}
}

// WithPhaseHook is called on every phase transition.
func WithPhaseHook(fn func(Phase)) Option {
	return func(im *Importer) {
		im.onPhase = fn
	}
}

// Importer orchestrates the import of one dump.
type Importer struct {
	cfg         Config
	sink        Sink
	checkpoints Checkpoints
	progress    *progress.Registry
	logger      *slog.Logger
	onPhase     func(Phase)
}

// New creates an importer writing to s.
func New(cfg Config, s Sink, opts ...Option) *Importer {
	cfg.applyDefaults()
	im := &Importer{
		cfg:      cfg,
		sink:     s,
		progress: progress.New(io.Discard),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Config returns the effective configuration.
func (im *Importer) Config() Config {
	return im.cfg
}

// Plan indexes the dump at path without importing anything.
func (im *Importer) Plan(path string) (*dump.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer func() { _ = f.Close() }()

	ix, err := dump.Segment(f)
	if err != nil {
		return nil, fmt.Errorf("failed to index dump: %w", err)
	}
	return ix, nil
}

// Run imports the dump at path in segmented mode: definitions first as one
// transaction, then every table segment with at most Workers in parallel.
//
// A definitions failure aborts the run before any table is attempted. A table
// failure only stops that table; the other tables run to completion and the
// failures are returned together as a *TablesError.
func (im *Importer) Run(ctx context.Context, path string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}
	defer func() { sum.Elapsed = time.Since(start) }()

	im.enter(PhaseIndexing)
	ix, err := im.Plan(path)
	if err != nil {
		return sum, err
	}
	sum.Total = ix.Total
	sum.Tables = len(ix.Segments)
	im.logger.Info("indexed dump",
		"path", path,
		"statements", ix.Total,
		"definitions", len(ix.Definitions),
		"segments", len(ix.Segments))

	total := im.progress.Add("total", ix.Total)
	defer im.progress.Remove(total)

	im.enter(PhaseDefinitions)
	n, skipped, err := im.importDefinitions(ctx, ix, total)
	if err != nil {
		return sum, err
	}
	sum.Definitions = n
	sum.Skipped += skipped

	im.enter(PhaseTables)
	results := im.importSegments(ctx, path, ix.Segments, total)
	for _, r := range results {
		sum.Imported += r.imported
		sum.Skipped += r.skipped
		sum.Batches += r.batches
		if r.err != nil {
			sum.Failures = append(sum.Failures, TableFailure{Segment: r.segment, Table: r.table, Err: r.err})
		}
	}
	sum.Imported += sum.Definitions
	im.enter(PhaseDone)

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	if len(sum.Failures) > 0 {
		return sum, &TablesError{Failures: sum.Failures}
	}
	return sum, nil
}

func (im *Importer) importDefinitions(ctx context.Context, ix *dump.Index, total *progress.Entry) (imported, skipped int, err error) {
	if len(ix.Definitions) == 0 {
		return 0, 0, nil
	}

	if im.cfg.Resume && im.checkpoints != nil {
		done, err := im.checkpoints.DefinitionsDone(ctx, im.cfg.Source)
		if err != nil {
			return 0, 0, err
		}
		if done {
			im.logger.Info("definitions already imported, skipping", "statements", len(ix.Definitions))
			total.Advance(len(ix.Definitions))
			return 0, len(ix.Definitions), nil
		}
	}

	total.SetStatus(fmt.Sprintf("Importing definitions with %d statements and %s.",
		len(ix.Definitions), humanize.Bytes(uint64(ix.DefinitionBytes()))))

	ref := batchRef{table: "definitions", record: "definitions"}
	if err := im.importBatch(ctx, ref, ix.Definitions); err != nil {
		return 0, 0, fmt.Errorf("failed to import definitions: %w", err)
	}
	total.Advance(len(ix.Definitions))

	if im.checkpoints != nil {
		if err := im.checkpoints.MarkDefinitionsDone(ctx, im.cfg.Source, len(ix.Definitions)); err != nil {
			return len(ix.Definitions), 0, err
		}
	}

	im.logger.Info("imported definitions", "statements", len(ix.Definitions))
	return len(ix.Definitions), 0, nil
}

// batchRef identifies a batch for error reporting.
type batchRef struct {
	table  string
	record string // DumpRecord name
	base   int    // index of the first statement of the batch
}

// importBatch sends one batch and turns any failure into an error. The batch
// is persisted as a DumpRecord before the error is returned.
func (im *Importer) importBatch(ctx context.Context, ref batchRef, statements []string) error {
	results, err := im.sink.Import(ctx, statements)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		path, werr := WriteRecord(im.cfg.DumpDir, ref.record, DumpRecord{Errors: []string{err.Error()}, Queries: statements})
		if werr != nil {
			im.logger.Error("failed to persist dump record", "table", ref.table, "error", werr)
		}
		return fmt.Errorf("%s batch at index %d (saved to %s): %w", ref.table, ref.base, path, err)
	}

	messages, ferr := attribute(ref.table, ref.base, statements, results, im.cfg.SecondaryPhrase)
	if ferr == nil {
		return nil
	}
	if len(messages) == 0 {
		messages = []string{ferr.Error()}
	}

	path, werr := WriteRecord(im.cfg.DumpDir, ref.record, DumpRecord{Errors: messages, Queries: statements})
	if werr != nil {
		im.logger.Error("failed to persist dump record", "table", ref.table, "error", werr)
	}

	var se *StatementError
	var ae *AmbiguousError
	switch {
	case errors.As(ferr, &se):
		se.Record = path
	case errors.As(ferr, &ae):
		ae.Record = path
	}
	return ferr
}

func (im *Importer) enter(p Phase) {
	im.logger.Debug("phase", "phase", p.String())
	if im.onPhase != nil {
		im.onPhase(p)
	}
}
