package stage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/retry"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

type fakeStage struct {
	items   []WorkItem
	calls   atomic.Int64
	process func(item WorkItem) (table.Record, error)
	short   func(item WorkItem) (table.Record, bool)
}

func (f *fakeStage) Name() string     { return "fake" }
func (f *fakeStage) Table() string    { return "fake.csv" }
func (f *fakeStage) Header() []string { return []string{"Filename", "Result"} }

func (f *fakeStage) Load(context.Context) ([]WorkItem, error) { return f.items, nil }

func (f *fakeStage) Process(_ context.Context, item WorkItem) (table.Record, error) {
	f.calls.Add(1)
	if f.process != nil {
		return f.process(item)
	}
	return table.Record{"Result": "ok:" + item.Key}, nil
}

func (f *fakeStage) Placeholder(_ WorkItem, err error) table.Record {
	return table.Record{"Result": "Error: " + err.Error()}
}

type shortStage struct{ *fakeStage }

func (s shortStage) ShortCircuit(item WorkItem) (table.Record, bool) { return s.short(item) }

type countingProgress struct {
	mu     sync.Mutex
	ticks  int
	failed int
}

func (p *countingProgress) Start(string, int) {}
func (p *countingProgress) Finish(string)     {}
func (p *countingProgress) Tick(_, _ string, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks++
	if failed {
		p.failed++
	}
}

func items(n int) []WorkItem {
	out := make([]WorkItem, n)
	for i := range out {
		out[i] = WorkItem{Key: fmt.Sprintf("video-%02d.mp4", i)}
	}
	return out
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newGate(n int) *retry.Client {
	return retry.New("items", n, retry.Policy{MaxRetries: 3}, nil, retry.WithSleep(noSleep))
}

func TestRunIsIdempotentAcrossRuns(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	st := &fakeStage{items: items(5)}
	r := NewRunner(store, nil)

	stats, err := r.Run(context.Background(), st, newGate(3))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Succeeded)
	assert.EqualValues(t, 5, st.calls.Load())

	before, err := store.ReadAll("fake.csv")
	require.NoError(t, err)

	stats, err = r.Run(context.Background(), st, newGate(3))
	require.NoError(t, err)
	assert.True(t, stats.Nothing())
	assert.Equal(t, 5, stats.Done)
	assert.EqualValues(t, 5, st.calls.Load(), "second run must not call the transform")

	after, err := store.ReadAll("fake.csv")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunWritesExactlyOneRowPerKey(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	st := &fakeStage{items: items(40)}
	progress := &countingProgress{}
	r := NewRunner(store, nil, WithProgress(progress))

	_, err := r.Run(context.Background(), st, newGate(8))
	require.NoError(t, err)

	tbl, err := store.ReadAll("fake.csv")
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 40)
	keys, err := store.KeysPresent("fake.csv", "Filename")
	require.NoError(t, err)
	assert.Len(t, keys, 40)
	assert.Equal(t, 40, progress.ticks)
}

func TestRunSkipsOnlyDoneKeys(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Append("fake.csv", []string{"Filename", "Result"},
		table.Record{"Filename": "video-01.mp4", "Result": "earlier"}))

	st := &fakeStage{items: items(3)}
	stats, err := NewRunner(store, nil).Run(context.Background(), st, newGate(2))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 2, stats.Remaining)
	assert.EqualValues(t, 2, st.calls.Load())
}

func TestTerminalFailureWritesPlaceholderAndIsNotRetriedNextRun(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	st := &fakeStage{items: items(3)}
	st.process = func(item WorkItem) (table.Record, error) {
		if item.Key == "video-01.mp4" {
			return nil, errors.New("engine crashed")
		}
		return table.Record{"Result": "ok"}, nil
	}
	progress := &countingProgress{}
	r := NewRunner(store, nil, WithProgress(progress))

	stats, err := r.Run(context.Background(), st, newGate(2))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.EqualValues(t, 2+3, st.calls.Load(), "failing item uses its whole attempt budget")
	assert.Equal(t, 3, progress.ticks)
	assert.Equal(t, 1, progress.failed)

	tbl, err := store.ReadAll("fake.csv")
	require.NoError(t, err)
	var placeholder table.Record
	for _, rec := range tbl.Records {
		if rec["Filename"] == "video-01.mp4" {
			placeholder = rec
		}
	}
	require.NotNil(t, placeholder)
	assert.True(t, strings.HasPrefix(placeholder["Result"], "Error: "))

	calls := st.calls.Load()
	_, err = r.Run(context.Background(), st, newGate(2))
	require.NoError(t, err)
	assert.Equal(t, calls, st.calls.Load())
}

func TestFatalErrorAbortsStage(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	st := &fakeStage{items: items(1)}
	st.process = func(WorkItem) (table.Record, error) {
		return nil, common.NewHTTPError("openai", http.StatusUnauthorized, "invalid key")
	}

	_, err := NewRunner(store, nil).Run(context.Background(), st, newGate(1))
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.EqualValues(t, 1, st.calls.Load())
	assert.False(t, store.Exists("fake.csv"), "fatal items are not marked done")
}

func TestShortCircuitSkipsTransform(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	base := &fakeStage{items: []WorkItem{{Key: "a.mp4", Text: "short"}, {Key: "b.mp4", Text: "long enough text"}}}
	base.short = func(item WorkItem) (table.Record, bool) {
		if len(item.Text) < 10 {
			return table.Record{"Result": "too short"}, true
		}
		return nil, false
	}

	stats, err := NewRunner(store, nil).Run(context.Background(), shortStage{base}, newGate(1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ShortCircuited)
	assert.Equal(t, 1, stats.Succeeded)
	assert.EqualValues(t, 1, base.calls.Load())

	tbl, err := store.ReadAll("fake.csv")
	require.NoError(t, err)
	assert.Contains(t, tbl.Records, table.Record{"Filename": "a.mp4", "Result": "too short"})
}

func TestDuplicateInputKeysProcessedOnce(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	st := &fakeStage{items: []WorkItem{{Key: "a.mp4"}, {Key: "a.mp4"}, {Key: ""}}}

	stats, err := NewRunner(store, nil).Run(context.Background(), st, newGate(2))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Remaining)
	assert.EqualValues(t, 1, st.calls.Load())
}

func TestPaddedInputKeysMatchCheckpoint(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Append("fake.csv", []string{"Filename", "Result"},
		table.Record{"Filename": "a.mp4", "Result": "earlier"}))

	st := &fakeStage{items: []WorkItem{{Key: " a.mp4 "}, {Key: "b.mp4\t"}}}
	r := NewRunner(store, nil)
	stats, err := r.Run(context.Background(), st, newGate(1))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)
	assert.EqualValues(t, 1, st.calls.Load())

	keys, err := store.KeysPresent("fake.csv", "Filename")
	require.NoError(t, err)
	assert.True(t, keys.Has("b.mp4"))

	stats, err = r.Run(context.Background(), st, newGate(1))
	require.NoError(t, err)
	assert.True(t, stats.Nothing())
	assert.EqualValues(t, 1, st.calls.Load())
}
