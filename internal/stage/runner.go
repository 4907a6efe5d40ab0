package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/logging"
	"github.com/joseph-ayodele/video-insights/internal/retry"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

// Runner drives stages against a Store: it skips keys already in the output
// table, admits the rest through a retry client, and appends one row per item
// as soon as that item finishes.
type Runner struct {
	store     *table.Store
	logger    *slog.Logger
	progress  Progress
	keyColumn string
}

type Option func(*Runner)

func WithProgress(p Progress) Option {
	return func(r *Runner) {
		if p != nil {
			r.progress = p
		}
	}
}

func NewRunner(store *table.Store, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:     store,
		logger:    logger,
		progress:  noProgress{},
		keyColumn: constants.ColFilename,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes every not-yet-done item of st. Per-item failures become
// placeholder rows; only fatal errors (or a store write failure) are returned.
func (r *Runner) Run(ctx context.Context, st Stage, gate *retry.Client) (Stats, error) {
	start := time.Now()
	stats := Stats{Stage: st.Name()}
	log := logging.WithStage(r.logger, st.Name())
	ctx = common.WithStage(ctx, st.Name())

	done, err := r.store.KeysPresent(st.Table(), r.keyColumn)
	if err != nil {
		if !errors.Is(err, table.ErrNotFound) {
			return stats, common.FatalError("STORE_READ", fmt.Errorf("checkpoint %s: %w", st.Table(), err))
		}
		done = table.KeySet{}
	}

	items, err := st.Load(ctx)
	if err != nil {
		return stats, err
	}
	stats.Total = len(items)

	remaining := make([]WorkItem, 0, len(items))
	queued := make(map[string]struct{}, len(items))
	for _, it := range items {
		it.Key = strings.TrimSpace(it.Key)
		switch {
		case it.Key == "":
			log.Warn("stage.item.no_key", "path", it.Path)
			continue
		case done.Has(it.Key):
			stats.Done++
			continue
		}
		if _, dup := queued[it.Key]; dup {
			log.Warn("stage.item.duplicate_input", "key", it.Key)
			continue
		}
		queued[it.Key] = struct{}{}
		remaining = append(remaining, it)
	}
	stats.Remaining = len(remaining)

	log.Info("stage.start",
		"run_id", common.RunIDFromContext(ctx),
		"table", st.Table(),
		"total", stats.Total,
		"done", stats.Done,
		"remaining", stats.Remaining,
		"concurrency", gate.Concurrency(),
	)
	if len(remaining) == 0 {
		stats.Elapsed = time.Since(start)
		log.Info("stage.nothing_to_do")
		return stats, nil
	}

	r.progress.Start(st.Name(), len(remaining))
	defer r.progress.Finish(st.Name())

	header := st.Header()
	shortCircuit, _ := st.(ShortCircuiter)

	var mu sync.Mutex
	record := func(item WorkItem, rec table.Record, out outcome) error {
		rec = withKey(rec, r.keyColumn, item.Key)
		if err := r.store.Append(st.Table(), header, rec); err != nil {
			return common.FatalError("STORE_WRITE", err)
		}
		mu.Lock()
		switch out {
		case outcomeFailed:
			stats.Failed++
		case outcomeShortCircuit:
			stats.ShortCircuited++
		default:
			stats.Succeeded++
		}
		mu.Unlock()
		r.progress.Tick(st.Name(), item.Key, out == outcomeFailed)
		return nil
	}

	var launchErr error
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range remaining {
		if gctx.Err() != nil {
			break
		}
		if shortCircuit != nil {
			if rec, ok := shortCircuit.ShortCircuit(item); ok {
				log.Info("stage.item.short_circuit", "key", item.Key)
				if launchErr = record(item, rec, outcomeShortCircuit); launchErr != nil {
					break
				}
				continue
			}
		}

		g.Go(func() error {
			itemStart := time.Now()
			rec, err := retry.Submit(gctx, gate, st.Name()+":"+item.Key, func(ctx context.Context) (table.Record, error) {
				return st.Process(ctx, item)
			})
			out := outcomeOK
			if err != nil {
				if common.IsFatal(err) {
					log.Error("stage.item.fatal", "key", item.Key, "error", err)
					return err
				}
				if gctx.Err() != nil {
					// cancelled by a sibling's fatal error: leave the item for the next run
					return nil
				}
				log.Error("stage.item.failed", "key", item.Key, "error", err,
					"elapsed_ms", time.Since(itemStart).Milliseconds())
				rec = st.Placeholder(item, err)
				out = outcomeFailed
			} else {
				log.Info("stage.item.ok", "key", item.Key, "elapsed_ms", time.Since(itemStart).Milliseconds())
			}
			return record(item, rec, out)
		})
	}

	err = g.Wait()
	if launchErr != nil {
		err = launchErr
	}
	stats.Elapsed = time.Since(start)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error("stage.aborted", "error", err, "succeeded", stats.Succeeded, "failed", stats.Failed)
		return stats, err
	}

	log.Info("stage.done",
		"succeeded", stats.Succeeded,
		"short_circuited", stats.ShortCircuited,
		"failed", stats.Failed,
		"elapsed_ms", stats.Elapsed.Milliseconds(),
	)
	return stats, nil
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeShortCircuit
	outcomeFailed
)

func withKey(rec table.Record, col, key string) table.Record {
	if rec == nil {
		rec = table.Record{}
	}
	rec[col] = key
	return rec
}
