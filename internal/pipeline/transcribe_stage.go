package pipeline

import (
	"context"
	"path/filepath"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/ingest"
	"github.com/joseph-ayodele/video-insights/internal/media"
	"github.com/joseph-ayodele/video-insights/internal/stage"
	"github.com/joseph-ayodele/video-insights/internal/table"
	"github.com/joseph-ayodele/video-insights/internal/transcribe"
)

// TranscribeStage extracts each video's audio and writes its transcript.
type TranscribeStage struct {
	videoDir    string
	audioDir    string
	audio       media.AudioExtractor
	transcriber transcribe.Transcriber
}

func NewTranscribeStage(videoDir, audioDir string, audio media.AudioExtractor, tr transcribe.Transcriber) *TranscribeStage {
	return &TranscribeStage{videoDir: videoDir, audioDir: audioDir, audio: audio, transcriber: tr}
}

var _ stage.Stage = (*TranscribeStage)(nil)

func (s *TranscribeStage) Name() string  { return constants.StageTranscribe }
func (s *TranscribeStage) Table() string { return constants.TranscriptsTable }

func (s *TranscribeStage) Header() []string {
	return []string{constants.ColFilename, constants.ColTranscription, constants.ColTranscriptionError}
}

// Load lists the input videos. No videos at all is fatal.
func (s *TranscribeStage) Load(context.Context) ([]stage.WorkItem, error) {
	videos, _, err := ingest.ListVideos(s.videoDir)
	if err != nil {
		return nil, err
	}
	items := make([]stage.WorkItem, 0, len(videos))
	for _, v := range videos {
		items = append(items, stage.WorkItem{Key: v.Filename, Path: v.Path})
	}
	return items, nil
}

func (s *TranscribeStage) Process(ctx context.Context, item stage.WorkItem) (table.Record, error) {
	wav := filepath.Join(s.audioDir, ingest.BaseName(item.Key)+".wav")
	if err := s.audio.ExtractAudio(ctx, item.Path, wav); err != nil {
		return nil, err
	}
	text, err := s.transcriber.Transcribe(ctx, wav)
	if err != nil {
		return nil, err
	}
	return table.Record{
		constants.ColTranscription:      text,
		constants.ColTranscriptionError: "",
	}, nil
}

// Placeholder leaves the transcript empty so the summarize stage short-circuits it.
func (s *TranscribeStage) Placeholder(_ stage.WorkItem, err error) table.Record {
	return table.Record{
		constants.ColTranscription:      "",
		constants.ColTranscriptionError: err.Error(),
	}
}
