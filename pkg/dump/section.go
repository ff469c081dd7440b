package dump

import (
	"fmt"
	"strings"
)

// Structural marker keys.
const (
	KeyTable     = "TABLE"
	KeyTableData = "TABLE DATA"
)

// InitialTable names the definitions section a dump starts in.
const InitialTable = "Initial"

// MarkerKind classifies a comment.
type MarkerKind int

// Marker kinds.
const (
	MarkerNone       MarkerKind = iota // empty key, ignored
	MarkerAnnotation                   // display-only KEY: VALUE
	MarkerTable                        // TABLE: name starts a definitions section
	MarkerTableData                    // TABLE DATA: name starts a data section
)

// Marker is a comment split into key and value.
type Marker struct {
	Key   string
	Value string
	Text  string // the whole comment
}

// Kind returns the marker kind for the key.
func (m Marker) Kind() MarkerKind {
	switch m.Key {
	case "":
		return MarkerNone
	case KeyTable:
		return MarkerTable
	case KeyTableData:
		return MarkerTableData
	default:
		return MarkerAnnotation
	}
}

// IsBoundary returns true for TABLE and TABLE DATA markers.
func (m Marker) IsBoundary() bool {
	k := m.Kind()
	return k == MarkerTable || k == MarkerTableData
}

// Classify splits a comment into a key and a value at the first ": ".
// Comments written without the space ("TABLE:users") fall back to the first
// ":". Both parts are trimmed of colons and spaces.
func Classify(comment string) Marker {
	text := strings.Trim(comment, "- \t")

	key, value := text, ""
	if i := strings.Index(text, ": "); i >= 0 {
		key, value = text[:i], text[i:]
	} else if i := strings.IndexByte(text, ':'); i >= 0 {
		key, value = text[:i], text[i:]
	}

	return Marker{
		Key:   strings.Trim(key, ": "),
		Value: strings.Trim(value, ": "),
		Text:  text,
	}
}

// SectionKind distinguishes definitions from data sections.
type SectionKind int

// Section kinds.
const (
	SectionDefinitions SectionKind = iota
	SectionData
)

func (k SectionKind) String() string {
	switch k {
	case SectionDefinitions:
		return "definitions"
	case SectionData:
		return "data"
	default:
		return "unknown"
	}
}

// Section is the part of the dump the parser is currently in.
type Section struct {
	Kind  SectionKind
	Table string
}

// Definitions returns a definitions section for table.
func Definitions(table string) Section {
	return Section{Kind: SectionDefinitions, Table: table}
}

// Data returns a data section for table.
func Data(table string) Section {
	return Section{Kind: SectionData, Table: table}
}

// IsData returns true if the section holds data statements.
func (s Section) IsData() bool {
	return s.Kind == SectionData
}

func (s Section) String() string {
	return fmt.Sprintf("%s %s", s.Table, s.Kind)
}

// Transition describes what a token did to the tracker.
type Transition struct {
	Changed    bool // a TABLE or TABLE DATA marker moved the section
	Previous   Section
	Annotation string // non-empty for display-only comments
}

// Tracker follows section markers through a token stream.
type Tracker struct {
	current Section
}

// NewTracker returns a tracker in the initial definitions section.
func NewTracker() *Tracker {
	return &Tracker{current: Definitions(InitialTable)}
}

// NewTrackerAt returns a tracker starting in the given section.
func NewTrackerAt(s Section) *Tracker {
	return &Tracker{current: s}
}

// Current returns the current section.
func (t *Tracker) Current() Section {
	return t.current
}

// Observe feeds a token to the tracker. Queries never change the section.
func (t *Tracker) Observe(tok Token) Transition {
	if !tok.IsComment() {
		return Transition{Previous: t.current}
	}

	m := Classify(tok.Text)
	prev := t.current
	switch m.Kind() {
	case MarkerTable:
		t.current = Definitions(m.Value)
		return Transition{Changed: true, Previous: prev}
	case MarkerTableData:
		t.current = Data(m.Value)
		return Transition{Changed: true, Previous: prev}
	case MarkerAnnotation:
		return Transition{Previous: prev, Annotation: m.Text}
	default:
		return Transition{Previous: prev}
	}
}
