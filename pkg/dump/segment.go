package dump

import (
	"errors"
	"io"
)

// TableSegment is the contiguous data section of one table.
type TableSegment struct {
	Name       string `json:"name" yaml:"name"`
	Offset     int64  `json:"offset" yaml:"offset"`         // first statement after the TABLE DATA marker
	Statements int    `json:"statements" yaml:"statements"` // queries in the section
}

// Index is the result of a segmentation pass.
type Index struct {
	// Definitions holds every statement read inside a definitions section,
	// in file order across all definitions blocks.
	Definitions []string
	// Segments holds one entry per data section, in file order.
	Segments []TableSegment
	// Total is the number of queries in the dump.
	Total int
}

// DataStatements returns the number of queries across all segments.
func (ix *Index) DataStatements() int {
	n := 0
	for _, s := range ix.Segments {
		n += s.Statements
	}
	return n
}

// DefinitionBytes returns the byte size of all definitions.
func (ix *Index) DefinitionBytes() int {
	n := 0
	for _, d := range ix.Definitions {
		n += len(d)
	}
	return n
}

// Segment indexes a dump in one linear pass. Definition texts are retained;
// data statements are only counted and located.
func Segment(r io.Reader) (*Index, error) {
	lx := NewLexer(r)
	tr := NewTracker()
	ix := &Index{}

	open := -1      // index into ix.Segments of the data section being read
	located := true // whether the open segment has seen its first query

	for {
		offset, tok, err := lx.NextWithOffset()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if tok.IsComment() {
			if !tr.Observe(tok).Changed {
				continue
			}
			open = -1
			if sec := tr.Current(); sec.IsData() {
				ix.Segments = append(ix.Segments, TableSegment{
					Name:   sec.Table,
					Offset: lx.Offset(),
				})
				open = len(ix.Segments) - 1
				located = false
			}
			continue
		}

		ix.Total++
		if open < 0 {
			ix.Definitions = append(ix.Definitions, tok.Text)
			continue
		}
		seg := &ix.Segments[open]
		if !located {
			seg.Offset = offset
			located = true
		}
		seg.Statements++
	}

	return ix, nil
}
