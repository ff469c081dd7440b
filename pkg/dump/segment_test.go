package dump

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment_Sample(t *testing.T) {
	input := readSample(t)

	ix, err := Segment(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, ix.Definitions, 5)
	assert.Equal(t, "OPTION IMPORT;\n", ix.Definitions[0])
	assert.True(t, strings.HasPrefix(ix.Definitions[1], "DEFINE TABLE users"))
	assert.True(t, strings.HasPrefix(ix.Definitions[3], "DEFINE TABLE posts"))
	assert.True(t, strings.HasPrefix(ix.Definitions[4], "DEFINE TABLE tags"))

	require.Len(t, ix.Segments, 3)
	assert.Equal(t, "users", ix.Segments[0].Name)
	assert.Equal(t, 2, ix.Segments[0].Statements)
	assert.Equal(t, "posts", ix.Segments[1].Name)
	assert.Equal(t, 3, ix.Segments[1].Statements)
	assert.Equal(t, "tags", ix.Segments[2].Name)
	assert.Equal(t, 0, ix.Segments[2].Statements)

	assert.Equal(t, 10, ix.Total)
	assert.Equal(t, ix.Total, len(ix.Definitions)+ix.DataStatements())
}

func TestSegment_TotalsMatchQueryCount(t *testing.T) {
	inputs := map[string]string{
		"sample":        readSample(t),
		"no markers":    "A;\nB;\nC;\n",
		"data only":     "-- TABLE DATA: a\nA;\nB;\n-- TABLE DATA: b\nC;\n",
		"trailing data": "-- TABLE: a\nDEFINE TABLE a;\n-- TABLE DATA: a\nINSERT 1;\nINSERT 2",
		"empty":         "",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			ix, err := Segment(strings.NewReader(input))
			require.NoError(t, err)

			queries := 0
			for _, tok := range lexAll(t, input) {
				if tok.IsQuery() {
					queries++
				}
			}
			assert.Equal(t, queries, ix.Total)
			assert.Equal(t, queries, len(ix.Definitions)+ix.DataStatements())
		})
	}
}

func TestSegment_OffsetsReproduceStatements(t *testing.T) {
	input := readSample(t)
	want := queriesByTable(t, input)

	ix, err := Segment(strings.NewReader(input))
	require.NoError(t, err)

	for _, seg := range ix.Segments {
		t.Run(seg.Name, func(t *testing.T) {
			lx := NewLexer(strings.NewReader(input[seg.Offset:]), WithBaseOffset(seg.Offset))
			var got []string
			for len(got) < seg.Statements {
				tok, err := lx.Next()
				require.NoError(t, err)
				if tok.IsQuery() {
					got = append(got, tok.Text)
				}
			}
			assert.Equal(t, want[seg.Name], got)
		})
	}
}

func TestSegment_FirstStatementOffset(t *testing.T) {
	input := "-- TABLE DATA: a\n-- note\n\nINSERT 1;\n"

	ix, err := Segment(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ix.Segments, 1)
	assert.Equal(t, int64(strings.Index(input, "INSERT")), ix.Segments[0].Offset)
}

func TestSegment_EmptyDataSectionAtEOF(t *testing.T) {
	input := "-- TABLE: a\nDEFINE TABLE a;\n-- TABLE DATA: a\n"

	ix, err := Segment(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ix.Segments, 1)
	assert.Equal(t, int64(len(input)), ix.Segments[0].Offset)
	assert.Equal(t, 0, ix.Segments[0].Statements)
}

func TestSegment_PropagatesLexErrors(t *testing.T) {
	_, err := Segment(strings.NewReader("A;\n\xff;\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.False(t, errors.Is(err, io.EOF))
}
