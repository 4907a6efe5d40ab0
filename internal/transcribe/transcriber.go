package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/media"
)

// Transcriber turns a 16 kHz mono wav into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// New builds the transcriber selected by cfg.Engine.
func New(cfg common.TranscribeConfig, runner media.Runner, logger *slog.Logger) (Transcriber, error) {
	switch cfg.Engine {
	case common.EngineWhisper, "":
		return NewWhisper(WhisperConfig{
			Bin:      cfg.WhisperBin,
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
		}, runner, logger), nil
	case common.EngineAssemblyAI:
		return NewAssemblyAI(cfg.AssemblyAIKey, logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown transcriber %q", cfg.Engine), common.ErrInvalidInput)
	}
}
