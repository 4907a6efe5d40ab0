package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/console"
	"github.com/joseph-ayodele/video-insights/internal/ingest"
	"github.com/joseph-ayodele/video-insights/internal/llm/openai"
	"github.com/joseph-ayodele/video-insights/internal/logging"
	"github.com/joseph-ayodele/video-insights/internal/media"
	"github.com/joseph-ayodele/video-insights/internal/pipeline"
	"github.com/joseph-ayodele/video-insights/internal/repository"
	"github.com/joseph-ayodele/video-insights/internal/transcribe"
)

// app holds what every subcommand shares; it is filled in by the root
// command's pre-run hook.
type app struct {
	envFile  string
	rootDir  string
	logLevel string

	cfg      *common.Config
	logger   *slog.Logger
	closeLog func() error
	printer  *console.Printer
	db       *repository.DB
}

func (a *app) setup() error {
	if err := common.LoadEnvFile(a.envFile); err != nil {
		return common.NewAppError("CONFIG_ERROR", "load env file", err)
	}
	if a.rootDir != "" {
		_ = os.Setenv("VI_ROOT_DIR", a.rootDir)
	}
	if a.logLevel != "" {
		_ = os.Setenv("LOG_LEVEL", a.logLevel)
	}

	a.printer = console.NewPrinter(os.Stdout)
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.Paths.Logs})
	if err != nil {
		return common.NewAppError("CONFIG_ERROR", "init logging", err)
	}
	slog.SetDefault(logger)
	a.logger, a.closeLog = logger, closeLog

	logger.Debug("config loaded",
		"root", cfg.Paths.Root,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"transcriber", cfg.Transcribe.Engine,
		"api_key", logging.SanitizeToken(cfg.LLM.APIKey),
		"max_retries", cfg.Retry.MaxRetries,
	)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close(a.logger)
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			printError("closing logs: %v\n", err)
		}
	}
}

// journal opens the run journal. A journal that cannot be opened only costs
// the audit trail, unless required is set.
func (a *app) journal(ctx context.Context, required bool) (repository.JournalRepository, error) {
	if a.cfg.Journal.DSN == common.JournalDisabledDSN {
		if required {
			return nil, common.NewAppError("CONFIG_ERROR", "journal is disabled (JOURNAL_DSN=off)", common.ErrInvalidInput)
		}
		return repository.NopJournal(), nil
	}
	db, err := repository.Open(ctx, repository.Config{DSN: a.cfg.Journal.DSN, DialTimeout: a.cfg.Journal.DialTimeout, MaxConns: 4}, a.logger)
	if err == nil {
		var j repository.JournalRepository
		if j, err = repository.NewJournalRepository(ctx, db, a.logger); err == nil {
			a.db = db
			return j, nil
		}
		db.Close(a.logger)
	}
	if required {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.logger.Warn("journal unavailable, continuing without it", "error", err)
	return repository.NopJournal(), nil
}

type needs struct {
	generator   bool
	transcriber bool
}

func (a *app) processor(ctx context.Context, n needs) (*pipeline.Processor, error) {
	deps := pipeline.Deps{
		Media:    media.NewFFmpeg(a.cfg.Transcribe.FFmpegBin, media.ExecRunner{Logger: a.logger}, a.logger),
		Progress: console.NewProgress(os.Stdout),
	}
	if n.generator {
		if err := a.cfg.RequireGenerator(); err != nil {
			return nil, err
		}
		deps.Generator = openai.NewClient(openai.Config{
			APIKey:      a.cfg.LLM.APIKey,
			BaseURL:     a.cfg.LLM.BaseURL,
			Model:       a.cfg.LLM.Model,
			VisionModel: a.cfg.LLM.VisionModel,
			Temperature: a.cfg.LLM.Temperature,
			Timeout:     a.cfg.LLM.Timeout,
		}, a.logger)
	}
	if n.transcriber {
		tr, err := transcribe.New(a.cfg.Transcribe, media.ExecRunner{Logger: a.logger}, a.logger)
		if err != nil {
			return nil, err
		}
		deps.Transcriber = tr
	}
	j, err := a.journal(ctx, false)
	if err != nil {
		return nil, err
	}
	deps.Journal = j
	return pipeline.NewProcessor(a.cfg, deps, a.logger), nil
}

// runContext tags ctx with a fresh run id.
func (a *app) runContext(ctx context.Context) context.Context {
	runID := uuid.NewString()
	a.logger.Info("run.start", "run_id", runID, "root", a.cfg.Paths.Root)
	return common.WithRunID(ctx, runID)
}

func (a *app) announceInputs() {
	videos, stats, err := ingest.ListVideos(a.cfg.Paths.Videos)
	if err != nil {
		return
	}
	a.printer.Inputs(a.cfg.Paths.Videos, len(videos), stats.Bytes)
}

