package scenes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/llm"
	"github.com/joseph-ayodele/video-insights/internal/retry"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

// Analyzer turns an ArtifactGroup into one record: per-image text, folded
// into a blob, then a summary and the configured custom fields.
type Analyzer struct {
	gen       llm.Generator
	artifacts *retry.Client
	genai     *retry.Client
	prompts   common.ScreenshotPrompts
	logger    *slog.Logger
}

// NewAnalyzer wires the vision calls through artifacts and the text calls
// through genai. Both clients are shared across every admitted video.
func NewAnalyzer(gen llm.Generator, artifacts, genai *retry.Client, prompts common.ScreenshotPrompts, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, artifacts: artifacts, genai: genai, prompts: prompts, logger: logger}
}

// Header is the output column list, custom fields last.
func (a *Analyzer) Header() []string {
	h := []string{
		constants.ColFilename,
		constants.ColScreenshotCount,
		constants.ColExtractedText,
		constants.ColContentSummary,
	}
	for _, f := range a.prompts.CustomFields {
		h = append(h, f.Name)
	}
	return h
}

// Analyze returns one record for the video. Only fatal errors and a failed
// summary/custom-field generation are returned; a failed image becomes a
// placeholder and is left out of the fold.
func (a *Analyzer) Analyze(ctx context.Context, key string, group ArtifactGroup) (table.Record, error) {
	start := time.Now()
	texts, err := a.describeAll(ctx, key, group.Images)
	if err != nil {
		return nil, err
	}

	blob := Fold(texts)
	rec := table.Record{
		constants.ColFilename:        key,
		constants.ColScreenshotCount: strconv.Itoa(len(group.Images)),
		constants.ColExtractedText:   blob,
	}

	if blob == "" {
		rec[constants.ColContentSummary] = constants.NoScreenshotText
		for _, f := range a.prompts.CustomFields {
			rec[f.Name] = ""
		}
		a.logger.Info("scenes.analyze.no_text", "key", key, "images", len(group.Images))
		return rec, nil
	}

	gen := a.prompts.Generation
	summary, err := a.generate(ctx, key, "summary", llm.Request{
		Prompt:      llm.WithInput(a.prompts.Summary, blob),
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
	})
	if err != nil {
		return nil, err
	}
	rec[constants.ColContentSummary] = summary

	for _, f := range a.prompts.CustomFields {
		val, err := a.generate(ctx, key, f.Name, llm.Request{
			Prompt:      llm.WithInput(f.Prompt, blob),
			MaxTokens:   gen.MaxTokens,
			Temperature: gen.Temperature,
		})
		if err != nil {
			if common.IsFatal(err) || ctx.Err() != nil {
				return nil, err
			}
			a.logger.Error("scenes.analyze.field_failed", "key", key, "field", f.Name, "error", err)
			val = constants.ErrorCustomField
		}
		rec[f.Name] = val
	}

	a.logger.Info("scenes.analyze.ok",
		"key", key,
		"images", len(group.Images),
		"chars", len(blob),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}

// Placeholder is the record written when Analyze fails for the whole video.
func (a *Analyzer) Placeholder(key string, err error) table.Record {
	rec := table.Record{
		constants.ColFilename:       key,
		constants.ColExtractedText:  "",
		constants.ColContentSummary: constants.ErrorSummaryPrefix + err.Error(),
	}
	for _, f := range a.prompts.CustomFields {
		rec[f.Name] = constants.ErrorCustomField
	}
	return rec
}

func (a *Analyzer) describeAll(ctx context.Context, key string, images []string) ([]string, error) {
	texts := make([]string, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			op := "vision:" + key + ":" + filepath.Base(img)
			text, err := retry.Submit(gctx, a.artifacts, op, func(ctx context.Context) (string, error) {
				return a.gen.DescribeImage(ctx, llm.ImageRequest{
					Prompt:    a.prompts.Vision,
					ImagePath: img,
					MaxTokens: a.prompts.Generation.MaxTokens,
				})
			})
			if err != nil {
				if common.IsFatal(err) || gctx.Err() != nil {
					return err
				}
				a.logger.Error("scenes.image.failed", "key", key, "image", filepath.Base(img), "error", err)
				text = constants.ErrorScreenshotAnalysis
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

func (a *Analyzer) generate(ctx context.Context, key, what string, req llm.Request) (string, error) {
	return retry.Submit(ctx, a.genai, fmt.Sprintf("generate:%s:%s", key, what), func(ctx context.Context) (string, error) {
		return a.gen.Generate(ctx, req)
	})
}

// Fold joins per-image texts with a blank line, dropping failures and
// no-content answers.
func Fold(texts []string) string {
	var kept []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == constants.ErrorScreenshotAnalysis || llm.IsNoContent(t) {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, "\n\n")
}
