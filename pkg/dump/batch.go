package dump

import (
	"errors"
	"io"
)

// DefaultBatchBytes is the default data batch target in bytes.
const DefaultBatchBytes = 1_000_000

// StopReason records why a batch ended.
type StopReason int

// Stop reasons.
const (
	StopTarget   StopReason = iota // byte target reached in a data section
	StopBoundary                   // TABLE or TABLE DATA marker
	StopLimit                      // statement limit reached
	StopEOF                        // end of stream
)

func (r StopReason) String() string {
	switch r {
	case StopTarget:
		return "target"
	case StopBoundary:
		return "boundary"
	case StopLimit:
		return "limit"
	case StopEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Batch is a group of consecutive statements from one section, imported as a
// single transaction.
type Batch struct {
	Section    Section
	Statements []string
	Bytes      int
	Stop       StopReason
}

// Len returns the number of statements in the batch.
func (b Batch) Len() int {
	return len(b.Statements)
}

// Builder groups statements from a lexer into batches.
type Builder struct {
	lx           *Lexer
	tr           *Tracker
	limit        int
	consumed     int
	done         bool
	onAnnotation func(string)
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLimit stops the builder after n statements. Zero means no limit.
func WithLimit(n int) BuilderOption {
	return func(b *Builder) {
		b.limit = n
	}
}

// WithAnnotationHandler sets a callback for display-only comments.
func WithAnnotationHandler(fn func(text string)) BuilderOption {
	return func(b *Builder) {
		b.onAnnotation = fn
	}
}

// NewBuilder creates a builder reading from lx, starting in section start.
func NewBuilder(lx *Lexer, start Section, opts ...BuilderOption) *Builder {
	b := &Builder{lx: lx, tr: NewTrackerAt(start)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Section returns the section the next batch will belong to.
func (b *Builder) Section() Section {
	return b.tr.Current()
}

// Consumed returns the number of statements read so far, skipped ones
// included.
func (b *Builder) Consumed() int {
	return b.consumed
}

// Done returns true once the stream or the statement limit is exhausted.
func (b *Builder) Done() bool {
	return b.done
}

// Skip reads past the next n statements without batching them. Section
// markers are still tracked; comments do not count. It returns the number of
// statements actually skipped, which is less than n only at end of stream.
func (b *Builder) Skip(n int) (int, error) {
	skipped := 0
	for skipped < n && !b.done {
		if b.limitReached() {
			b.done = true
			break
		}
		tok, err := b.lx.Next()
		if errors.Is(err, io.EOF) {
			b.done = true
			break
		}
		if err != nil {
			return skipped, err
		}
		if tok.IsComment() {
			b.tr.Observe(tok)
			continue
		}
		skipped++
		b.consumed++
	}
	return skipped, nil
}

// NextBatch accumulates statements of the current section.
//
// The batch ends at the next TABLE or TABLE DATA marker even if it is below
// the target. In a data section it also ends as soon as its size reaches
// targetBytes, so it exceeds the target by less than one statement. A
// definitions section runs to its boundary regardless of size. The batch may
// be empty, for example when two markers follow each other.
func (b *Builder) NextBatch(targetBytes int) (Batch, error) {
	batch := Batch{Section: b.tr.Current()}
	if b.done {
		batch.Stop = StopEOF
		return batch, nil
	}

	for {
		if b.limitReached() {
			b.done = true
			batch.Stop = StopLimit
			return batch, nil
		}

		tok, err := b.lx.Next()
		if errors.Is(err, io.EOF) {
			b.done = true
			batch.Stop = StopEOF
			return batch, nil
		}
		if err != nil {
			return batch, err
		}

		if tok.IsComment() {
			t := b.tr.Observe(tok)
			if t.Changed {
				batch.Stop = StopBoundary
				return batch, nil
			}
			if t.Annotation != "" && b.onAnnotation != nil {
				b.onAnnotation(t.Annotation)
			}
			continue
		}

		batch.Statements = append(batch.Statements, tok.Text)
		batch.Bytes += len(tok.Text)
		b.consumed++

		if batch.Section.IsData() && batch.Bytes >= targetBytes {
			batch.Stop = StopTarget
			return batch, nil
		}
	}
}

func (b *Builder) limitReached() bool {
	return b.limit > 0 && b.consumed >= b.limit
}
