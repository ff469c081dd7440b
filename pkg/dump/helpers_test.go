package dump

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// readSample returns the contents of testdata/sample.surql.
func readSample(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "sample.surql"))
	require.NoError(t, err)
	return string(data)
}

// lexAll collects every token from input.
func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	lx := NewLexer(strings.NewReader(input))
	var tokens []Token
	for {
		tok, err := lx.Next()
		if errors.Is(err, io.EOF) {
			return tokens
		}
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
}

// queriesByTable walks input linearly and groups data queries by table.
func queriesByTable(t *testing.T, input string) map[string][]string {
	t.Helper()
	tr := NewTracker()
	out := make(map[string][]string)
	for _, tok := range lexAll(t, input) {
		if tok.IsComment() {
			tr.Observe(tok)
			continue
		}
		if sec := tr.Current(); sec.IsData() {
			out[sec.Table] = append(out[sec.Table], tok.Text)
		}
	}
	return out
}
