package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/export"
	"github.com/joseph-ayodele/video-insights/internal/llm"
	"github.com/joseph-ayodele/video-insights/internal/logging"
	"github.com/joseph-ayodele/video-insights/internal/media"
	"github.com/joseph-ayodele/video-insights/internal/merge"
	"github.com/joseph-ayodele/video-insights/internal/repository"
	"github.com/joseph-ayodele/video-insights/internal/retry"
	"github.com/joseph-ayodele/video-insights/internal/scenes"
	"github.com/joseph-ayodele/video-insights/internal/stage"
	"github.com/joseph-ayodele/video-insights/internal/table"
	"github.com/joseph-ayodele/video-insights/internal/transcribe"
)

// Media is everything the pipeline asks of ffmpeg.
type Media interface {
	media.AudioExtractor
	media.SceneExtractor
}

// Deps are the external collaborators. Generator may be nil for commands that
// never call it (transcribe, merge).
type Deps struct {
	Generator   llm.Generator
	Transcriber transcribe.Transcriber
	Media       Media
	Journal     repository.JournalRepository
	Progress    stage.Progress
	RetryOpts   []retry.Option
}

// Report is the outcome of a full run.
type Report struct {
	RunID   string
	Stages  []stage.Stats
	Extract ExtractStats
	Merge   merge.Result
	Elapsed time.Duration
}

// ExtractStats summarizes the screenshot pre-pass.
type ExtractStats struct {
	Videos  int
	Reused  int
	Images  int
	Failed  int
	Elapsed time.Duration
}

// Processor runs the stages in order: transcribe, summarize, screenshots,
// analyze, merge, export.
type Processor struct {
	cfg     *common.Config
	store   *table.Store
	runner  *stage.Runner
	journal repository.JournalRepository
	logger  *slog.Logger

	transcribeGate *retry.Client
	summarizeGate  *retry.Client
	videoGate      *retry.Client

	transcribe *TranscribeStage
	summarize  *SummarizeStage
	analyze    *AnalyzeStage
	extractor  *scenes.Extractor
	merger     *merge.Merger
	exporter   *export.Service
}

func NewProcessor(cfg *common.Config, deps Deps, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Journal == nil {
		deps.Journal = repository.NopJournal()
	}

	policy := retry.Policy{
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		RateLimitDelay: cfg.Retry.RateLimitDelay,
	}
	gate := func(name string, n int) *retry.Client {
		return retry.New(name, n, policy, logger, deps.RetryOpts...)
	}
	genai := gate("genai", cfg.Concurrency.GenAI)
	artifacts := gate("screenshots", cfg.Concurrency.Screenshots)

	store := table.NewStore(cfg.Paths.CSV, logger)
	extractor := scenes.NewExtractor(deps.Media, cfg.Paths.Screenshots, cfg.Scenes.Threshold, cfg.Scenes.FallbackThreshold, logger)
	analyzer := scenes.NewAnalyzer(deps.Generator, artifacts, genai, cfg.Pipeline.Screenshots, logger)

	return &Processor{
		cfg:     cfg,
		store:   store,
		runner:  stage.NewRunner(store, logger, stage.WithProgress(deps.Progress)),
		journal: deps.Journal,
		logger:  logger,

		transcribeGate: gate("transcribe", cfg.Concurrency.Transcribe),
		summarizeGate:  gate("summarize", cfg.Concurrency.Summarize),
		videoGate:      gate("videos", cfg.Concurrency.Videos),

		transcribe: NewTranscribeStage(cfg.Paths.Videos, cfg.Paths.Audio, deps.Media, deps.Transcriber),
		summarize:  NewSummarizeStage(store, deps.Generator, genai, cfg.Pipeline.Transcript, cfg.MinTranscriptLength),
		analyze:    NewAnalyzeStage(store, cfg.Paths.Videos, extractor, analyzer, cfg.Scenes.Enabled),
		extractor:  extractor,
		merger:     merge.NewMerger(store, logger),
		exporter:   export.NewService(logger),
	}
}

// Store exposes the table store the processor writes to.
func (p *Processor) Store() *table.Store { return p.store }

// RunAll executes every stage and stops at the first fatal error.
func (p *Processor) RunAll(ctx context.Context) (Report, error) {
	start := time.Now()
	ctx = ensureRunID(ctx)
	rep := Report{RunID: common.RunIDFromContext(ctx)}
	log := logging.WithRun(p.logger, rep.RunID)
	log.Info("pipeline.start", "root", p.cfg.Paths.Root)

	finish := func(err error) (Report, error) {
		rep.Elapsed = time.Since(start)
		if err != nil {
			log.Error("pipeline.aborted", "error", err, "elapsed_ms", rep.Elapsed.Milliseconds())
			return rep, err
		}
		log.Info("pipeline.done", "elapsed_ms", rep.Elapsed.Milliseconds())
		return rep, nil
	}

	for _, run := range []func(context.Context) (stage.Stats, error){p.Transcribe, p.Summarize} {
		stats, err := run(ctx)
		rep.Stages = append(rep.Stages, stats)
		if err != nil {
			return finish(err)
		}
	}

	flagged, err := FlaggedVideos(p.store)
	if err != nil {
		return finish(err)
	}
	if len(flagged) == 0 {
		log.Info("pipeline.screenshots.none_flagged")
	} else {
		analyze := p.analyze
		if p.cfg.Scenes.Enabled {
			ex, err := p.ExtractScreenshots(ctx)
			rep.Extract = ex
			if err != nil {
				return finish(err)
			}
			analyze = analyze.ExistingOnly()
		}
		stats, err := p.runStage(ctx, analyze, p.videoGate)
		rep.Stages = append(rep.Stages, stats)
		if err != nil {
			return finish(err)
		}
	}

	res, err := p.Merge(ctx)
	rep.Merge = res
	return finish(err)
}

// Transcribe runs the transcription stage.
func (p *Processor) Transcribe(ctx context.Context) (stage.Stats, error) {
	return p.runStage(ctx, p.transcribe, p.transcribeGate)
}

// Summarize runs the transcript summarize/tag stage.
func (p *Processor) Summarize(ctx context.Context) (stage.Stats, error) {
	return p.runStage(ctx, p.summarize, p.summarizeGate)
}

// Analyze runs the screenshot analysis stage.
func (p *Processor) Analyze(ctx context.Context) (stage.Stats, error) {
	return p.runStage(ctx, p.analyze, p.videoGate)
}

func (p *Processor) runStage(ctx context.Context, st stage.Stage, gate *retry.Client) (stage.Stats, error) {
	ctx = ensureRunID(ctx)
	var stats stage.Stats
	err := p.track(ctx, st.Name(), func() (repository.Counts, bool, error) {
		var err error
		stats, err = p.runner.Run(ctx, st, gate)
		return countsOf(stats), stats.Nothing(), err
	})
	return stats, err
}

// ExtractScreenshots makes sure every flagged video has its screenshot
// directory populated. Populated directories are left alone.
func (p *Processor) ExtractScreenshots(ctx context.Context) (ExtractStats, error) {
	ctx = ensureRunID(ctx)
	var out ExtractStats
	err := p.track(ctx, constants.StageScreenshots, func() (repository.Counts, bool, error) {
		var err error
		out, err = p.extractAll(ctx)
		return repository.Counts{
			Total:     out.Videos,
			Done:      out.Reused,
			Remaining: out.Videos - out.Reused,
			Succeeded: out.Videos - out.Reused - out.Failed,
			Failed:    out.Failed,
		}, out.Videos == out.Reused, err
	})
	return out, err
}

func (p *Processor) extractAll(ctx context.Context) (ExtractStats, error) {
	start := time.Now()
	var out ExtractStats
	log := logging.WithStage(p.logger, constants.StageScreenshots)

	flagged, err := FlaggedVideos(p.store)
	if err != nil {
		return out, err
	}
	out.Videos = len(flagged)
	log.Info("screenshots.start", "videos", out.Videos, "concurrency", p.videoGate.Concurrency())

	type result struct {
		group scenes.ArtifactGroup
		err   error
	}
	results := make([]result, len(flagged))
	g, gctx := errgroup.WithContext(ctx)
	for i, rec := range flagged {
		key := rec[constants.ColFilename]
		path := filepath.Join(p.cfg.Paths.Videos, key)
		g.Go(func() error {
			group, err := retry.Submit(gctx, p.videoGate, "screenshots:"+key, func(ctx context.Context) (scenes.ArtifactGroup, error) {
				return p.extractor.Ensure(ctx, path)
			})
			if err != nil && (common.IsFatal(err) || gctx.Err() != nil) {
				return err
			}
			if err != nil {
				log.Error("screenshots.video.failed", "key", key, "error", err)
			}
			results[i] = result{group: group, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	for _, r := range results {
		switch {
		case r.err != nil:
			out.Failed++
		case r.group.Reused:
			out.Reused++
		}
		out.Images += len(r.group.Images)
	}
	out.Elapsed = time.Since(start)
	log.Info("screenshots.done",
		"videos", out.Videos,
		"reused", out.Reused,
		"failed", out.Failed,
		"images", out.Images,
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	return out, nil
}

// Merge rebuilds the combined table and, when enabled, its XLSX copy.
func (p *Processor) Merge(ctx context.Context) (merge.Result, error) {
	ctx = ensureRunID(ctx)
	var res merge.Result
	err := p.track(ctx, constants.StageMerge, func() (repository.Counts, bool, error) {
		var err error
		res, err = p.merger.Merge()
		if err != nil {
			return repository.Counts{}, false, common.FatalError("STORE_WRITE", err)
		}
		return repository.Counts{Total: res.Rows, Succeeded: res.Rows}, len(res.Tables) == 0, nil
	})
	if err != nil || !p.cfg.ExportXLSX || len(res.Tables) == 0 {
		return res, err
	}

	err = p.track(ctx, constants.StageExport, func() (repository.Counts, bool, error) {
		combined, err := p.store.ReadAll(p.merger.Output())
		if err != nil {
			return repository.Counts{}, false, err
		}
		path := filepath.Join(p.cfg.Paths.CSV, constants.CombinedWorkbook)
		if err := p.exporter.WriteXLSX(combined, path); err != nil {
			return repository.Counts{}, false, err
		}
		return repository.Counts{Total: len(combined.Records), Succeeded: len(combined.Records)}, false, nil
	})
	return res, err
}

// track records a stage execution in the journal. Journal failures are
// logged and never fail the stage.
func (p *Processor) track(ctx context.Context, name string, fn func() (repository.Counts, bool, error)) error {
	runID := common.RunIDFromContext(ctx)
	id, jerr := p.journal.Start(ctx, runID, name)
	if jerr != nil {
		p.logger.Warn("journal.start_failed", "stage", name, "error", jerr)
	}

	counts, nothing, err := fn()

	status := constants.RunStatusSucceeded
	switch {
	case err != nil:
		status = constants.RunStatusFailed
	case nothing:
		status = constants.RunStatusSkipped
	}
	if jerr == nil {
		// the stage context may already be cancelled; the audit row still gets closed
		if ferr := p.journal.Finish(context.WithoutCancel(ctx), id, status, counts, err); ferr != nil {
			p.logger.Warn("journal.finish_failed", "stage", name, "error", ferr)
		}
	}
	return err
}

func countsOf(s stage.Stats) repository.Counts {
	return repository.Counts{
		Total:          s.Total,
		Done:           s.Done,
		Remaining:      s.Remaining,
		ShortCircuited: s.ShortCircuited,
		Succeeded:      s.Succeeded,
		Failed:         s.Failed,
	}
}

func ensureRunID(ctx context.Context) context.Context {
	if common.RunIDFromContext(ctx) != "" {
		return ctx
	}
	return common.WithRunID(ctx, uuid.NewString())
}
