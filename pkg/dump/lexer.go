package dump

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// CommentPrefix starts every comment line in a dump.
const CommentPrefix = "--"

// DefaultBufferSize is the read buffer size used by NewLexer.
const DefaultBufferSize = 16 * 1024

var (
	// ErrInvalidEncoding is returned when a line is not valid UTF-8.
	ErrInvalidEncoding = errors.New("dump is not valid UTF-8")

	// ErrCommentInStatement is returned when a comment line appears while a
	// multi-line statement is still being accumulated.
	ErrCommentInStatement = errors.New("comment line inside an unterminated statement")
)

var commentPrefix = []byte(CommentPrefix)

// Lexer splits a dump stream into comment and query tokens.
//
// Lines are read one at a time into a reused buffer, so lines of any length
// are supported. A comment line is a token on its own; every other line is
// appended to the pending statement until it ends with ";" followed by a line
// terminator.
type Lexer struct {
	r       *bufio.Reader
	line    []byte // scratch buffer reused for every line
	pending []byte // statement being accumulated
	start   int64  // offset of the first byte of pending
	pos     int64  // offset of the next unread byte
}

// LexerOption configures a Lexer.
type LexerOption func(*lexerOptions)

type lexerOptions struct {
	baseOffset int64
	bufferSize int
}

// WithBaseOffset sets the absolute offset of the first byte the lexer reads.
// Use it when the underlying reader has already been positioned with Seek.
func WithBaseOffset(offset int64) LexerOption {
	return func(o *lexerOptions) {
		o.baseOffset = offset
	}
}

// WithBufferSize sets the size of the underlying read buffer.
func WithBufferSize(size int) LexerOption {
	return func(o *lexerOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// NewLexer creates a lexer reading from r.
func NewLexer(r io.Reader, opts ...LexerOption) *Lexer {
	o := lexerOptions{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Lexer{
		r:    bufio.NewReaderSize(r, o.bufferSize),
		line: make([]byte, 0, 1024),
		pos:  o.baseOffset,
	}
}

// Offset returns the absolute offset of the next byte the lexer will read.
func (l *Lexer) Offset() int64 {
	return l.pos
}

// Next returns the next token, or io.EOF at the end of the stream.
func (l *Lexer) Next() (Token, error) {
	_, tok, err := l.NextWithOffset()
	return tok, err
}

// NextWithOffset returns the next token together with the absolute offset of
// its first byte. For a query this is where the statement text begins, not the
// current read position. It returns io.EOF at the end of the stream.
func (l *Lexer) NextWithOffset() (int64, Token, error) {
	for {
		lineStart := l.pos
		line, err := l.readLine()
		l.pos += int64(len(line))

		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return lineStart, Token{}, fmt.Errorf("failed to read dump at offset %d: %w", lineStart, err)
		}

		if len(line) > 0 {
			if !utf8.Valid(line) {
				return lineStart, Token{}, fmt.Errorf("%w: line at offset %d", ErrInvalidEncoding, lineStart)
			}

			if bytes.HasPrefix(line, commentPrefix) {
				if len(l.pending) > 0 {
					return lineStart, Token{}, fmt.Errorf("%w: comment at offset %d, statement started at %d",
						ErrCommentInStatement, lineStart, l.start)
				}
				return lineStart, Comment(trimComment(line)), nil
			}

			// Blank lines between statements are not part of any statement.
			if len(l.pending) > 0 || len(bytes.TrimSpace(line)) > 0 {
				if len(l.pending) == 0 {
					l.start = lineStart
				}
				l.pending = append(l.pending, line...)
				if terminated(l.pending) {
					return l.flush()
				}
			}
		}

		if eof {
			// Tolerate a missing terminator on the last statement.
			if len(bytes.TrimSpace(l.pending)) > 0 {
				return l.flush()
			}
			l.pending = l.pending[:0]
			return l.pos, Token{}, io.EOF
		}
	}
}

// readLine reads one line including its terminator into the scratch buffer.
// The returned slice is only valid until the next call.
func (l *Lexer) readLine() ([]byte, error) {
	l.line = l.line[:0]
	for {
		chunk, err := l.r.ReadSlice('\n')
		l.line = append(l.line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return l.line, err
	}
}

func (l *Lexer) flush() (int64, Token, error) {
	tok := Query(string(l.pending))
	l.pending = l.pending[:0]
	return l.start, tok, nil
}

// terminated reports whether b ends with ";" followed by a line terminator.
func terminated(b []byte) bool {
	return bytes.HasSuffix(b, []byte(";\n")) || bytes.HasSuffix(b, []byte(";\r\n"))
}

// trimComment strips the line terminator, the comment prefix and any
// surrounding dashes or whitespace.
func trimComment(line []byte) string {
	line = bytes.TrimRight(line, "\r\n")
	return string(bytes.Trim(line, "- \t"))
}
