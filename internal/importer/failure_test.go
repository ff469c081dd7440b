package importer

import (
	"context"
	"net/http"
	"testing"

	"github.com/leapstack-labs/dumpimport/internal/sink"
	"github.com/leapstack-labs/dumpimport/internal/sink/sinktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cascade = "The query was not executed due to a failed transaction"

func TestAttribute(t *testing.T) {
	stmts := []string{"s0;\n", "s1;\n", "s2;\n", "s3;\n"}
	ok, boom, skip := sinktest.OK(), sinktest.Err("boom"), sinktest.Err(cascade)

	tests := []struct {
		name      string
		results   []sink.Result
		wantIndex int // -1 when no primary failure is expected
		ambiguous bool
	}{
		{
			name:      "all statements succeed",
			results:   []sink.Result{ok, ok, ok, ok},
			wantIndex: -1,
		},
		{
			name:      "primary failure then cascade",
			results:   []sink.Result{ok, ok, boom, skip},
			wantIndex: 2,
		},
		{
			name:      "cascade before primary is skipped",
			results:   []sink.Result{skip, boom, skip, skip},
			wantIndex: 1,
		},
		{
			name:      "only cascade failures",
			results:   []sink.Result{ok, skip, skip, skip},
			wantIndex: -1,
			ambiguous: true,
		},
		{
			name:      "result count mismatch",
			results:   []sink.Result{ok, ok, ok, ok, boom, skip, skip},
			wantIndex: -1,
			ambiguous: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := attribute("t", 10, stmts, tt.results, "")

			if tt.ambiguous {
				var ae *AmbiguousError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, 10, ae.Base)
				return
			}
			if tt.wantIndex < 0 {
				assert.NoError(t, err)
				return
			}

			var se *StatementError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantIndex, se.BatchIndex)
			assert.Equal(t, 10+tt.wantIndex, se.Index)
			assert.Equal(t, stmts[tt.wantIndex], se.Statement)
			assert.Equal(t, "boom", se.Message)
		})
	}
}

func TestAttribute_TooFewResults(t *testing.T) {
	_, err := attribute("t", 0, []string{"a;\n", "b;\n"}, []sink.Result{sinktest.OK()}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results for 2 statements")
}

func TestImporter_FramedResultsAttributeFailingStatement(t *testing.T) {
	path := writeDump(t, []string{"users"}, 4)
	srv := sinktest.New(t)
	fail := failWhere("id: users:2,", "Database record `users:2` already exists")
	srv.OnImport(func(statements []string) (int, []sink.Result) {
		// the server answers for BEGIN, OPTION and COMMIT too
		_, body := fail(statements)
		results := append([]sink.Result{sinktest.OK(), sinktest.OK()}, body...)
		return http.StatusOK, append(results, sinktest.OK())
	})

	_, err := newImporter(t, srv, Config{}).Run(context.Background(), path)

	var se *StatementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Index)
	assert.Equal(t, 2, se.BatchIndex)
	assert.Contains(t, se.Statement, "users:2")
	assert.Equal(t, 1, se.Secondary)
}
