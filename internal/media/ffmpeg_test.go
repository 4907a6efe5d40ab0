package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	calls [][]string
	run   func(args []string) error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.run != nil {
		if err := r.run(args); err != nil {
			return nil, []byte("boom"), err
		}
	}
	return nil, nil, nil
}

func TestExtractScenesBuildsSelectFilter(t *testing.T) {
	runner := &recordingRunner{}
	ff := NewFFmpeg("/usr/bin/ffmpeg", runner, nil)
	out := filepath.Join(t.TempDir(), "clip")

	require.NoError(t, ff.ExtractScenes(context.Background(), "/videos/clip.mp4", out, 0.3))
	require.Len(t, runner.calls, 1)

	cmd := strings.Join(runner.calls[0], " ")
	assert.True(t, strings.HasPrefix(cmd, "/usr/bin/ffmpeg "))
	assert.Contains(t, cmd, "-vf select='gt(scene,0.3)',scale=1280:-1")
	assert.Contains(t, cmd, "-vsync 0 -frame_pts 1")
	assert.True(t, strings.HasSuffix(cmd, "clip-frame-%03d.jpg"))
	assert.DirExists(t, out)
}

func writeFrames(n int) func(args []string) error {
	return func(args []string) error {
		pattern := args[len(args)-1]
		for i := 1; i <= n; i++ {
			if err := os.WriteFile(fmt.Sprintf(pattern, i), []byte{0xff}, 0o644); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestExtractScenesMovesFramesIntoPlace(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "clip")
	require.NoError(t, os.MkdirAll(out, 0o755))

	runner := &recordingRunner{run: writeFrames(2)}
	require.NoError(t, NewFFmpeg("", runner, nil).ExtractScenes(context.Background(), "clip.mp4", out, 0.1))

	images, err := ListImages(out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "clip-frame-001.jpg"),
		filepath.Join(out, "clip-frame-002.jpg"),
	}, images)
	assert.NoDirExists(t, filepath.Join(root, ".clip.part"))
}

func TestExtractScenesFailureLeavesNoFrames(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "clip")
	frames := writeFrames(3)
	runner := &recordingRunner{run: func(args []string) error {
		if err := frames(args); err != nil {
			return err
		}
		return errors.New("signal: killed")
	}}

	err := NewFFmpeg("", runner, nil).ExtractScenes(context.Background(), "clip.mp4", out, 0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	images, err := ListImages(out)
	require.NoError(t, err)
	assert.Empty(t, images, "a failed extraction must not look finished on the next run")
	assert.NoDirExists(t, filepath.Join(root, ".clip.part"))
}

func TestExtractAudioReusesExistingWav(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "clip.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))

	runner := &recordingRunner{}
	require.NoError(t, NewFFmpeg("", runner, nil).ExtractAudio(context.Background(), "clip.mp4", wav))
	assert.Empty(t, runner.calls)
}

func TestExtractAudioRenamesOnSuccess(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "audio", "clip.wav")
	runner := &recordingRunner{run: func(args []string) error {
		return os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
	}}

	require.NoError(t, NewFFmpeg("", runner, nil).ExtractAudio(context.Background(), "clip.mp4", wav))
	require.Len(t, runner.calls, 1)
	assert.Contains(t, strings.Join(runner.calls[0], " "), "-ar 16000 -ac 1 -c:a pcm_s16le")
	assert.FileExists(t, wav)
}

func TestExtractAudioFailureLeavesNoFile(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "clip.wav")
	runner := &recordingRunner{run: func(args []string) error {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return errors.New("exit status 1")
	}}

	err := NewFFmpeg("", runner, nil).ExtractAudio(context.Background(), "clip.mp4", wav)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NoFileExists(t, wav)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(wav), "clip.part.wav"))
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b-frame-002.jpg", "a-frame-001.JPG", "notes.txt", ".hidden.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	images, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a-frame-001.JPG"),
		filepath.Join(dir, "b-frame-002.jpg"),
	}, images)

	images, err = ListImages(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, images)
}
