package progress

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := New(&bytes.Buffer{})
	assert.False(t, r.Interactive(), "a buffer is not a terminal")

	a := r.Add("users", 10)
	b := r.Add("posts", 5)
	assert.Equal(t, 2, r.Len())

	a.Advance(3)
	a.Advance(2)
	a.SetStatus("Importing users data with 5 statements")
	b.SetCompleted(5)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, EntryState{Name: "users", Completed: 5, Total: 10, Status: "Importing users data with 5 statements"}, snap[0])
	assert.Equal(t, 5, snap[1].Completed)

	r.Remove(a)
	r.Remove(a)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "posts", r.Snapshot()[0].Name)
}

func TestRegistry_ConcurrentEntries(t *testing.T) {
	r := New(&bytes.Buffer{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := r.Add("table", 100)
			for j := 0; j < 100; j++ {
				e.Advance(1)
			}
			assert.Equal(t, 100, e.State().Completed)
			r.Remove(e)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Format(t *testing.T) {
	r := New(&bytes.Buffer{})
	out := r.Format(EntryState{Name: "total", Completed: 1234, Total: 5678, Status: "-- OPTION"})
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "1,234/5,678")
	assert.Contains(t, out, "-- OPTION")
}

func TestRegistry_RenderWritesFrames(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Add("users", 2)

	r.Render()
	first := buf.String()
	assert.Contains(t, first, "users")
	assert.NotContains(t, first, "\x1b[2A", "first frame has nothing to clear")

	r.Render()
	assert.Contains(t, buf.String()[len(first):], "\x1b[2A")
}

func TestRegistry_StartIsNoopWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	r.Add("users", 1)

	r.Start(context.Background(), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	r.Stop()
	assert.Empty(t, buf.String())
}
