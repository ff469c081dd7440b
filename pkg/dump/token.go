// Package dump reads SurrealDB-style dump files: it splits a byte stream into
// comment and query tokens, tracks the TABLE / TABLE DATA sections the dump is
// annotated with, indexes table segments by byte offset and groups statements
// into size-bounded import batches.
package dump

import "fmt"

// Kind identifies the type of a token.
type Kind int

// Token kinds.
const (
	KindComment Kind = iota // -- comment line
	KindQuery               // statement text terminated by ";\n"
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "COMMENT"
	case KindQuery:
		return "QUERY"
	default:
		return "UNKNOWN"
	}
}

// Token is a single comment line or a complete statement.
//
// For a comment, Text has the prefix, surrounding markers and whitespace
// trimmed. For a query, Text is the raw statement including its terminator.
type Token struct {
	Kind Kind
	Text string
}

// Comment returns a comment token with the given text.
func Comment(text string) Token {
	return Token{Kind: KindComment, Text: text}
}

// Query returns a query token with the given text.
func Query(text string) Token {
	return Token{Kind: KindQuery, Text: text}
}

// IsComment returns true if this is a comment token.
func (t Token) IsComment() bool {
	return t.Kind == KindComment
}

// IsQuery returns true if this is a query token.
func (t Token) IsQuery() bool {
	return t.Kind == KindQuery
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
}
