package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/video-insights/constants"
)

// SceneExtractor writes one image per detected scene change into outDir.
type SceneExtractor interface {
	ExtractScenes(ctx context.Context, videoPath, outDir string, threshold float64) error
}

// AudioExtractor writes a 16 kHz mono wav for a video.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, wavPath string) error
}

// FFmpeg shells out to the ffmpeg binary for audio and scene extraction.
type FFmpeg struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewFFmpeg(bin string, runner Runner, logger *slog.Logger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &FFmpeg{bin: bin, runner: runner, logger: logger}
}

var (
	_ SceneExtractor = (*FFmpeg)(nil)
	_ AudioExtractor = (*FFmpeg)(nil)
)

// ExtractAudio converts videoPath to pcm_s16le 16 kHz mono. An existing
// non-empty wav is reused.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, wavPath string) error {
	if fi, err := os.Stat(wavPath); err == nil && fi.Size() > 0 {
		f.logger.Debug("media.audio.reuse", "wav", wavPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(wavPath), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	// renamed into place only after ffmpeg succeeds
	tmp := strings.TrimSuffix(wavPath, filepath.Ext(wavPath)) + ".part.wav"
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		tmp,
	}
	if _, stderr, err := f.runner.Run(ctx, f.bin, args...); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg audio %s: %w: %s", filepath.Base(videoPath), err, Truncate(strings.TrimSpace(string(stderr)), 512))
	}
	if err := os.Rename(tmp, wavPath); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	f.logger.Info("media.audio.extracted", "video", filepath.Base(videoPath), "wav", wavPath)
	return nil
}

// ExtractScenes runs scene-change detection and saves frames as
// <outDir>/<video>-frame-NNN.jpg, scaled to 1280 wide. Frames land in a hidden
// sibling directory that replaces outDir only after ffmpeg succeeds.
func (f *FFmpeg) ExtractScenes(ctx context.Context, videoPath, outDir string, threshold float64) error {
	work := filepath.Join(filepath.Dir(outDir), "."+filepath.Base(outDir)+".part")
	if err := os.RemoveAll(work); err != nil {
		return fmt.Errorf("clear screenshot work dir: %w", err)
	}
	if err := os.MkdirAll(work, 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	pattern := filepath.Join(work, name+"-frame-%03d."+constants.ScreenshotExt)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%s)',scale=1280:-1", strconv.FormatFloat(threshold, 'f', -1, 64)),
		"-vsync", "0",
		"-frame_pts", "1",
		pattern,
	}
	f.logger.Debug("media.scenes.start", "video", name, "threshold", threshold, "out", outDir)
	if _, stderr, err := f.runner.Run(ctx, f.bin, args...); err != nil {
		_ = os.RemoveAll(work)
		return fmt.Errorf("ffmpeg scenes %s: %w: %s", name, err, Truncate(strings.TrimSpace(string(stderr)), 512))
	}
	if err := os.RemoveAll(outDir); err != nil {
		_ = os.RemoveAll(work)
		return fmt.Errorf("replace screenshot dir: %w", err)
	}
	if err := os.Rename(work, outDir); err != nil {
		return fmt.Errorf("finalize screenshot dir: %w", err)
	}
	return nil
}

// ListImages returns the sorted screenshot files in dir. A missing dir is empty.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if constants.NormalizeExt(filepath.Ext(e.Name())) == constants.ScreenshotExt {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
