package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/llm"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	root := t.TempDir()
	return &common.Config{
		Paths: common.PathsConfig{
			Root:        root,
			Videos:      filepath.Join(root, "videos"),
			Screenshots: filepath.Join(root, "screenshots"),
			Audio:       filepath.Join(root, "audio"),
			CSV:         filepath.Join(root, "csv"),
			Logs:        filepath.Join(root, "logs"),
		},
		Retry:       common.RetryConfig{MaxRetries: 2},
		Concurrency: common.ConcurrencyConfig{Transcribe: 2, Summarize: 2, GenAI: 3, Videos: 2, Screenshots: 3},
		Scenes:      common.ScenesConfig{Enabled: true, Threshold: 0.3, FallbackThreshold: 0.1},
		Pipeline:    common.DefaultPipelineConfig(),

		MinTranscriptLength: 10,
		ExportXLSX:          true,
	}
}

func writeVideos(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("video"), 0o644))
	}
}

// fakeGen answers by prompt: the screenshot flag is True only for transcripts
// that mention "on screen".
type fakeGen struct {
	prompts  common.PipelineConfig
	generate atomic.Int64
	vision   atomic.Int64
	err      error
}

func (f *fakeGen) Generate(_ context.Context, req llm.Request) (string, error) {
	f.generate.Add(1)
	if f.err != nil {
		return "", f.err
	}
	tp := f.prompts.Transcript
	switch {
	case strings.HasPrefix(req.Prompt, tp.NeedsScreenshots):
		if strings.Contains(req.Prompt, "on screen") {
			return "True.", nil
		}
		return "false", nil
	case strings.HasPrefix(req.Prompt, tp.Tags):
		return `"cooking", tools.`, nil
	case strings.HasPrefix(req.Prompt, tp.Summary):
		return "A summary.", nil
	case strings.HasPrefix(req.Prompt, f.prompts.Screenshots.Summary):
		return "Screens summary.", nil
	default:
		return "custom", nil
	}
}

func (f *fakeGen) DescribeImage(_ context.Context, req llm.ImageRequest) (string, error) {
	f.vision.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "Caption in " + filepath.Base(req.ImagePath), nil
}

type fakeTranscriber struct {
	texts map[string]string // wav base name -> text
	calls atomic.Int64
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav string) (string, error) {
	f.calls.Add(1)
	base := strings.TrimSuffix(filepath.Base(wav), ".wav")
	text, ok := f.texts[base]
	if !ok {
		return "", fmt.Errorf("no audio stream in %s", base)
	}
	return text, nil
}

type fakeMedia struct {
	mu     sync.Mutex
	images map[string]int // video base -> images produced per extraction
	scenes map[string]int // video base -> extraction calls
}

func newFakeMedia(images map[string]int) *fakeMedia {
	return &fakeMedia{images: images, scenes: map[string]int{}}
}

func (f *fakeMedia) ExtractAudio(_ context.Context, _, wav string) error {
	if err := os.MkdirAll(filepath.Dir(wav), 0o755); err != nil {
		return err
	}
	return os.WriteFile(wav, []byte("RIFF"), 0o644)
}

func (f *fakeMedia) ExtractScenes(_ context.Context, video, outDir string, _ float64) error {
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	f.mu.Lock()
	f.scenes[base]++
	n := f.images[base]
	f.mu.Unlock()
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("%s-frame-%03d.jpg", base, i)
		if err := os.WriteFile(filepath.Join(outDir, name), []byte{0xff}, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMedia) sceneCalls(base string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scenes[base]
}
