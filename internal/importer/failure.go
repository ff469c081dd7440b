package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/dumpimport/internal/sink"
)

// DefaultSecondaryPhrase identifies statements that did not run because an
// earlier statement aborted the transaction.
const DefaultSecondaryPhrase = "not executed due to a failed transaction"

// StatementError is the primary failure of a batch.
type StatementError struct {
	Table      string
	Index      int // statement index within the table, or within the dump in replay mode
	BatchIndex int // index within the failing batch
	Statement  string
	Message    string
	Secondary  int    // cascade failures reported after the primary one
	Record     string // path of the persisted DumpRecord
}

func (e *StatementError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "import error in %s at index %d: %s", e.Table, e.Index, e.Message)
	if e.Statement != "" {
		fmt.Fprintf(&sb, "\nSQL: %s", strings.TrimSpace(truncate(e.Statement, 512)))
	}
	if e.Record != "" {
		fmt.Fprintf(&sb, "\nbatch saved to %s", e.Record)
	}
	return sb.String()
}

// AmbiguousError is returned when every failure in a batch is a cascade
// failure, so no root cause can be attributed.
type AmbiguousError struct {
	Table  string
	Base   int // index of the first statement of the batch
	Errors []string
	Record string
}

func (e *AmbiguousError) Error() string {
	msg := fmt.Sprintf("unresolved import errors in %s batch starting at index %d (%d errors, no primary failure):\n%s",
		e.Table, e.Base, len(e.Errors), strings.Join(e.Errors, "\n"))
	if e.Record != "" {
		msg += "\nbatch saved to " + e.Record
	}
	return msg
}

// TableFailure is a segment that did not import completely.
type TableFailure struct {
	Segment int
	Table   string
	Err     error
}

// TablesError aggregates the failed segments of a concurrent import.
type TablesError struct {
	Failures []TableFailure
}

func (e *TablesError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Table
	}
	return fmt.Sprintf("%d tables failed to import: %s", len(e.Failures), strings.Join(names, ", "))
}

// Unwrap returns the per-table errors.
func (e *TablesError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// attribute inspects the results of one batch. It returns the messages of
// every failed statement and, if there were any, the error to report: the
// first failure whose message is not a cascade failure, or an AmbiguousError
// when all of them are.
//
// results must hold one entry per statement. When the counts differ no
// failure can be pinned to a statement, so any failure is ambiguous.
func attribute(table string, base int, statements []string, results []sink.Result, phrase string) ([]string, error) {
	if phrase == "" {
		phrase = DefaultSecondaryPhrase
	}

	var messages []string
	primary := -1
	for i, r := range results {
		if !r.Failed() {
			continue
		}
		msg := r.Message()
		messages = append(messages, msg)
		if primary < 0 && !strings.Contains(msg, phrase) {
			primary = i
		}
	}

	if len(messages) == 0 {
		if len(results) < len(statements) {
			return nil, fmt.Errorf("import of %s returned %d results for %d statements", table, len(results), len(statements))
		}
		return nil, nil
	}
	if primary < 0 || len(results) != len(statements) {
		return messages, &AmbiguousError{Table: table, Base: base, Errors: messages}
	}

	return messages, &StatementError{
		Table:      table,
		Index:      base + primary,
		BatchIndex: primary,
		Statement:  statements[primary],
		Message:    results[primary].Message(),
		Secondary:  len(messages) - 1,
	}
}

// IsAttributed reports whether err carries a resolved primary failure.
func IsAttributed(err error) bool {
	var se *StatementError
	return errors.As(err, &se)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
