package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/joseph-ayodele/video-insights/internal/common"
)

const assemblyService = "assemblyai"

// AssemblyAI uploads the wav and waits for the hosted transcript.
type AssemblyAI struct {
	client *aai.Client
	logger *slog.Logger
}

func NewAssemblyAI(apiKey string, logger *slog.Logger) *AssemblyAI {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssemblyAI{client: aai.NewClient(apiKey), logger: logger}
}

var _ Transcriber = (*AssemblyAI)(nil)

func (a *AssemblyAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	start := time.Now()
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	transcript, err := a.client.Transcripts.TranscribeFromReader(ctx, f, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.logger.Error("transcribe.assemblyai.error", "audio", audioPath, "error", err)
		return "", classifyAssemblyError(err)
	}
	if transcript.Error != nil && *transcript.Error != "" {
		return "", fmt.Errorf("assemblyai transcript %s: %s", audioPath, *transcript.Error)
	}

	var text string
	if transcript.Text != nil {
		text = strings.TrimSpace(*transcript.Text)
	}
	a.logger.Debug("transcribe.assemblyai.ok",
		"audio", audioPath,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// classifyAssemblyError maps SDK errors onto service errors so the retry
// client can tell auth and rate-limit failures apart.
func classifyAssemblyError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"), strings.Contains(msg, "authentication"):
		return common.NewHTTPError(assemblyService, http.StatusUnauthorized, err.Error())
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return common.NewHTTPError(assemblyService, http.StatusTooManyRequests, err.Error())
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return common.NewTransportError(assemblyService, err)
	}
	return fmt.Errorf("assemblyai: %w", err)
}
