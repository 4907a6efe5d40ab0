package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/media"
)

type WhisperConfig struct {
	Bin      string // whisper.cpp CLI, default "whisper-cli"
	Model    string // ggml model path
	Language string
}

// Whisper runs the whisper.cpp CLI and reads the transcript from stdout.
type Whisper struct {
	cfg    WhisperConfig
	runner media.Runner
	logger *slog.Logger
}

func NewWhisper(cfg WhisperConfig, runner media.Runner, logger *slog.Logger) *Whisper {
	if cfg.Bin == "" {
		cfg.Bin = "whisper-cli"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = media.ExecRunner{Logger: logger}
	}
	return &Whisper{cfg: cfg, runner: runner, logger: logger}
}

var _ Transcriber = (*Whisper)(nil)

func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	start := time.Now()
	args := []string{
		"-m", w.cfg.Model,
		"-f", audioPath,
		"-l", w.cfg.Language,
		"-nt", // no timestamps
		"-np", // no progress/system prints
	}
	stdout, stderr, err := w.runner.Run(ctx, w.cfg.Bin, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", common.FatalError("TRANSCRIBER_MISSING", fmt.Errorf("whisper binary %q: %w", w.cfg.Bin, err))
		}
		return "", fmt.Errorf("whisper %s: %w: %s", audioPath, err, media.Truncate(strings.TrimSpace(string(stderr)), 512))
	}

	text := JoinSegments(string(stdout))
	w.logger.Debug("transcribe.whisper.ok",
		"audio", audioPath,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// JoinSegments collapses whisper's one-segment-per-line output into a single
// space separated transcript.
func JoinSegments(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
