// Package progress tracks live import progress: one entry per active import
// stream, each with a completed/total counter and a free-text status line.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultInterval is how often a terminal display is repainted.
const DefaultInterval = 200 * time.Millisecond

var (
	nameStyle   = lipgloss.NewStyle().Bold(true)
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// EntryState is a point-in-time copy of an entry.
type EntryState struct {
	Name      string
	Completed int
	Total     int
	Status    string
}

// Entry is one line of progress. All methods are safe for concurrent use.
type Entry struct {
	reg       *Registry
	name      string
	completed int
	total     int
	status    string
	started   time.Time
}

// Registry holds the active entries. Entries are added and removed under a
// lock as workers start and finish.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
	out     io.Writer
	tty     bool
	bar     progress.Model
	printer *message.Printer
	drawn   int // lines painted by the last render

	stop chan struct{}
	done chan struct{}
}

// New creates a registry that paints to out. Painting only happens when out
// is a terminal; otherwise the registry just keeps state and bars are drawn
// without color.
func New(out io.Writer) *Registry {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	profile := termenv.Ascii
	if tty {
		profile = termenv.NewOutput(out).EnvColorProfile()
	}
	return &Registry{
		out: out,
		tty: tty,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
			progress.WithColorProfile(profile),
		),
		printer: message.NewPrinter(language.English),
	}
}

// Interactive returns true if the registry paints to a terminal.
func (r *Registry) Interactive() bool {
	return r.tty
}

// Add registers a new entry.
func (r *Registry) Add(name string, total int) *Entry {
	e := &Entry{reg: r, name: name, total: total, started: time.Now()}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

// Remove unregisters an entry. Removing an entry twice is a no-op.
func (r *Registry) Remove(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.entries {
		if cur == e {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of active entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the state of every active entry in insertion order.
func (r *Registry) Snapshot() []EntryState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EntryState, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.stateLocked()
	}
	return out
}

// Start repaints the display every interval until Stop is called or ctx is
// done. It does nothing when the output is not a terminal.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	if !r.tty {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Render()
			case <-r.stop:
				r.Render()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop paints a final frame and stops the repaint loop.
func (r *Registry) Stop() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
	r.stop = nil
}

// Render paints the current state, replacing the previous frame.
func (r *Registry) Render() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	if r.drawn > 0 {
		fmt.Fprintf(&sb, "\x1b[%dA\x1b[J", r.drawn)
	}
	lines := 0
	for _, e := range r.entries {
		sb.WriteString(r.formatLocked(e))
		lines += 2
	}
	r.drawn = lines
	_, _ = io.WriteString(r.out, sb.String())
}

// Format returns the two display lines for an entry state.
func (r *Registry) Format(s EntryState) string {
	pct := 0.0
	if s.Total > 0 {
		pct = float64(s.Completed) / float64(s.Total)
	}
	return fmt.Sprintf("%s %s %s\n  %s\n",
		nameStyle.Render(s.Name),
		r.bar.ViewAs(pct),
		r.printer.Sprintf("%d/%d", s.Completed, s.Total),
		statusStyle.Render(s.Status))
}

func (r *Registry) formatLocked(e *Entry) string {
	return r.Format(e.stateLocked())
}

// Name returns the entry name.
func (e *Entry) Name() string {
	return e.name
}

// Advance adds n completed statements.
func (e *Entry) Advance(n int) {
	e.reg.mu.Lock()
	e.completed += n
	e.reg.mu.Unlock()
}

// SetCompleted sets the completed count.
func (e *Entry) SetCompleted(n int) {
	e.reg.mu.Lock()
	e.completed = n
	e.reg.mu.Unlock()
}

// SetStatus replaces the free-text status line.
func (e *Entry) SetStatus(text string) {
	e.reg.mu.Lock()
	e.status = text
	e.reg.mu.Unlock()
}

// State returns a copy of the entry.
func (e *Entry) State() EntryState {
	e.reg.mu.Lock()
	defer e.reg.mu.Unlock()
	return e.stateLocked()
}

// Elapsed returns the time since the entry was added.
func (e *Entry) Elapsed() time.Duration {
	return time.Since(e.started)
}

func (e *Entry) stateLocked() EntryState {
	return EntryState{Name: e.name, Completed: e.completed, Total: e.total, Status: e.status}
}
