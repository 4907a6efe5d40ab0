package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/repository"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

func memoryJournal(t *testing.T) repository.JournalRepository {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.Config{DSN: "sqlite://:memory:", DialTimeout: time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	j, err := repository.NewJournalRepository(context.Background(), db, nil)
	require.NoError(t, err)
	return j
}

func byKey(t *testing.T, store *table.Store, name string) map[string]table.Record {
	t.Helper()
	tbl, err := store.ReadAll(name)
	require.NoError(t, err)
	out := map[string]table.Record{}
	for _, r := range tbl.Records {
		out[r[constants.ColFilename]] = r
	}
	return out
}

func TestRunAllEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	writeVideos(t, cfg.Paths.Videos, "a.mp4", "b.mov", "c.avi", "d.mp4", "notes.txt")

	gen := &fakeGen{prompts: cfg.Pipeline}
	tr := &fakeTranscriber{texts: map[string]string{
		"a": "the product link is on screen right now",
		"b": "a long talk with no visuals at all",
		"c": "hi",
		// d has no audio: transcription fails terminally
	}}
	fm := newFakeMedia(map[string]int{"a": 2})
	journal := memoryJournal(t)

	p := NewProcessor(cfg, Deps{Generator: gen, Transcriber: tr, Media: fm, Journal: journal}, nil)
	rep, err := p.RunAll(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Stages, 3)

	transcripts := byKey(t, p.Store(), constants.TranscriptsTable)
	assert.Len(t, transcripts, 4)
	assert.Equal(t, "", transcripts["d.mp4"][constants.ColTranscription])
	assert.Contains(t, transcripts["d.mp4"][constants.ColTranscriptionError], "no audio stream")

	processed := byKey(t, p.Store(), constants.ProcessedTranscriptsTable)
	assert.Equal(t, "True", processed["a.mp4"]["Needs Screenshots"])
	assert.Equal(t, "False", processed["b.mov"]["Needs Screenshots"])
	assert.Equal(t, constants.ShortTranscriptSummary, processed["c.avi"]["Summary"])
	assert.Equal(t, constants.ShortTranscriptSummary, processed["d.mp4"]["Summary"])

	// a, c and d are flagged; c and d yield no images even after the fallback
	assert.Equal(t, 1, fm.sceneCalls("a"))
	assert.Equal(t, 2, fm.sceneCalls("c"))
	assert.Equal(t, 2, fm.sceneCalls("d"))
	assert.Zero(t, fm.sceneCalls("b"))
	assert.Equal(t, 3, rep.Extract.Videos)
	assert.Equal(t, 2, rep.Extract.Images)

	shots := byKey(t, p.Store(), constants.ScreenshotsTable)
	assert.Len(t, shots, 3)
	assert.Equal(t, "2", shots["a.mp4"][constants.ColScreenshotCount])
	assert.Equal(t, "Caption in a-frame-001.jpg\n\nCaption in a-frame-002.jpg", shots["a.mp4"][constants.ColExtractedText])
	assert.Equal(t, "Screens summary.", shots["a.mp4"][constants.ColContentSummary])
	assert.Equal(t, constants.NoScreenshotText, shots["c.avi"][constants.ColContentSummary])

	combined, err := p.Store().ReadAll(constants.CombinedTable)
	require.NoError(t, err)
	assert.Len(t, combined.Records, 4)
	assert.Equal(t, []string{
		"Filename", "Transcription", "Transcription Error", "Summary", "Tags", "Needs Screenshots", "Products",
		"Screenshot Count", "Extracted Text", "Content Summary", "Screenshot Products",
	}, combined.Header)
	assert.Equal(t, 4, rep.Merge.Rows)
	assert.FileExists(t, filepath.Join(cfg.Paths.CSV, constants.CombinedWorkbook))

	runs, err := journal.Recent(context.Background(), 20)
	require.NoError(t, err)
	stages := map[string]constants.RunStatus{}
	for _, r := range runs {
		assert.Equal(t, rep.RunID, r.RunID)
		stages[r.Stage] = r.Status
	}
	assert.Equal(t, map[string]constants.RunStatus{
		constants.StageTranscribe:  constants.RunStatusSucceeded,
		constants.StageSummarize:   constants.RunStatusSucceeded,
		constants.StageScreenshots: constants.RunStatusSucceeded,
		constants.StageAnalyze:     constants.RunStatusSucceeded,
		constants.StageMerge:       constants.RunStatusSucceeded,
		constants.StageExport:      constants.RunStatusSucceeded,
	}, stages)

	// resumption: nothing external is called again
	generate, vision, transcribe := gen.generate.Load(), gen.vision.Load(), tr.calls.Load()
	rep, err = p.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, generate, gen.generate.Load())
	assert.Equal(t, vision, gen.vision.Load())
	assert.Equal(t, transcribe, tr.calls.Load())
	assert.Equal(t, 1, fm.sceneCalls("a"), "populated screenshot dirs are reused")
	for _, s := range rep.Stages {
		assert.True(t, s.Nothing(), s.Stage)
	}
}

func TestRunAllEmptyVideoDirIsFatal(t *testing.T) {
	cfg := testConfig(t)
	writeVideos(t, cfg.Paths.Videos, "readme.md")

	p := NewProcessor(cfg, Deps{Generator: &fakeGen{prompts: cfg.Pipeline}, Transcriber: &fakeTranscriber{}, Media: newFakeMedia(nil)}, nil)
	_, err := p.RunAll(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.False(t, p.Store().Exists(constants.CombinedTable))
}

func TestRunAllStopsOnAuthFailure(t *testing.T) {
	cfg := testConfig(t)
	writeVideos(t, cfg.Paths.Videos, "a.mp4")
	gen := &fakeGen{prompts: cfg.Pipeline, err: common.NewHTTPError("openai", http.StatusForbidden, "no access")}
	tr := &fakeTranscriber{texts: map[string]string{"a": "a transcript that is long enough"}}
	journal := memoryJournal(t)

	p := NewProcessor(cfg, Deps{Generator: gen, Transcriber: tr, Media: newFakeMedia(nil), Journal: journal}, nil)
	_, err := p.RunAll(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.LessOrEqual(t, gen.generate.Load(), int64(4), "one attempt per column at most")
	assert.False(t, p.Store().Exists(constants.CombinedTable))

	runs, err := journal.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	assert.Equal(t, constants.StageSummarize, runs[0].Stage)
	assert.Equal(t, constants.RunStatusFailed, runs[0].Status)
}

func TestAnalyzeWithoutExtractionUsesExistingImages(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenes.Enabled = false
	gen := &fakeGen{prompts: cfg.Pipeline}
	fm := newFakeMedia(map[string]int{"a": 3})
	p := NewProcessor(cfg, Deps{Generator: gen, Media: fm}, nil)

	require.NoError(t, p.Store().Append(constants.ProcessedTranscriptsTable,
		[]string{"Filename", "Needs Screenshots"},
		table.Record{"Filename": "a.mp4", "Needs Screenshots": "True"},
		table.Record{"Filename": "b.mp4", "Needs Screenshots": "True"},
		table.Record{"Filename": "c.mp4", "Needs Screenshots": "False"},
	))
	dir := filepath.Join(cfg.Paths.Screenshots, "b")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-frame-001.jpg"), nil, 0o644))

	stats, err := p.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Remaining)
	assert.Zero(t, fm.sceneCalls("a"))
	assert.EqualValues(t, 1, gen.vision.Load())

	shots := byKey(t, p.Store(), constants.ScreenshotsTable)
	assert.Equal(t, "0", shots["a.mp4"][constants.ColScreenshotCount])
	assert.Equal(t, "1", shots["b.mp4"][constants.ColScreenshotCount])
}

func TestAnalyzeExtractsWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{prompts: cfg.Pipeline}
	fm := newFakeMedia(map[string]int{"a": 1})
	p := NewProcessor(cfg, Deps{Generator: gen, Media: fm}, nil)

	require.NoError(t, p.Store().Append(constants.ProcessedTranscriptsTable,
		[]string{"Filename", "Needs Screenshots"},
		table.Record{"Filename": "a.mp4", "Needs Screenshots": "True"},
		table.Record{"Filename": "z.mp4", "Needs Screenshots": "True"},
	))

	stats, err := p.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, fm.sceneCalls("a"))
	assert.Equal(t, 2, fm.sceneCalls("z"), "primary pass plus one fallback")

	shots := byKey(t, p.Store(), constants.ScreenshotsTable)
	assert.Equal(t, "1", shots["a.mp4"][constants.ColScreenshotCount])
	assert.Equal(t, "0", shots["z.mp4"][constants.ColScreenshotCount])
}
