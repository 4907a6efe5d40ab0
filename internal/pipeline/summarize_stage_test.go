package pipeline

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

func seedTranscripts(t *testing.T, store *table.Store, rows ...table.Record) {
	t.Helper()
	require.NoError(t, store.Append(constants.TranscriptsTable,
		[]string{constants.ColFilename, constants.ColTranscription}, rows...))
}

func TestShortTranscriptWritesPlaceholderWithoutCalls(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{prompts: cfg.Pipeline}
	p := NewProcessor(cfg, Deps{Generator: gen}, nil)
	seedTranscripts(t, p.Store(), table.Record{"Filename": "a.mp4", "Transcription": "short"})

	stats, err := p.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ShortCircuited)
	assert.Zero(t, gen.generate.Load())

	out, err := p.Store().ReadAll(constants.ProcessedTranscriptsTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"Filename", "Transcription", "Summary", "Tags", "Needs Screenshots", "Products"}, out.Header)
	require.Len(t, out.Records, 1)
	assert.Equal(t, table.Record{
		"Filename":          "a.mp4",
		"Transcription":     "short",
		"Summary":           "Transcription too short or empty",
		"Tags":              "",
		"Needs Screenshots": "True",
		"Products":          "",
	}, out.Records[0])
}

func TestSummarizeGeneratesEveryColumn(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{prompts: cfg.Pipeline}
	p := NewProcessor(cfg, Deps{Generator: gen}, nil)
	seedTranscripts(t, p.Store(),
		table.Record{"Filename": "a.mp4", "Transcription": "we put the link on screen for you"},
		table.Record{"Filename": "b.mp4", "Transcription": "just some background music playing"},
	)

	stats, err := p.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Succeeded)
	assert.EqualValues(t, 2*4, gen.generate.Load(), "summary, tags, flag and one custom field per video")

	out, err := p.Store().ReadAll(constants.ProcessedTranscriptsTable)
	require.NoError(t, err)
	byKey := map[string]table.Record{}
	for _, r := range out.Records {
		byKey[r["Filename"]] = r
	}
	assert.Equal(t, "A summary.", byKey["a.mp4"]["Summary"])
	assert.Equal(t, "cooking, tools", byKey["a.mp4"]["Tags"])
	assert.Equal(t, "True", byKey["a.mp4"]["Needs Screenshots"])
	assert.Equal(t, "custom", byKey["a.mp4"]["Products"])
	assert.Equal(t, "False", byKey["b.mp4"]["Needs Screenshots"])
}

func TestSummarizeFailureWritesErrorPlaceholder(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{prompts: cfg.Pipeline, err: common.NewHTTPError("openai", http.StatusInternalServerError, "overloaded")}
	p := NewProcessor(cfg, Deps{Generator: gen}, nil)
	seedTranscripts(t, p.Store(), table.Record{"Filename": "a.mp4", "Transcription": "long enough transcript"})

	stats, err := p.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	out, err := p.Store().ReadAll(constants.ProcessedTranscriptsTable)
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.True(t, strings.HasPrefix(rec["Summary"], "Error: "))
	assert.Equal(t, constants.ErrorTags, rec["Tags"])
	assert.Equal(t, constants.FlagTrue, rec["Needs Screenshots"])
	assert.Equal(t, constants.ErrorCustomField, rec["Products"])
	assert.Equal(t, "long enough transcript", rec["Transcription"])
}

func TestSummarizeAuthFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{prompts: cfg.Pipeline, err: common.NewHTTPError("openai", http.StatusUnauthorized, "bad key")}
	p := NewProcessor(cfg, Deps{Generator: gen}, nil)
	seedTranscripts(t, p.Store(), table.Record{"Filename": "a.mp4", "Transcription": "long enough transcript"})

	_, err := p.Summarize(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.False(t, p.Store().Exists(constants.ProcessedTranscriptsTable))
}

func TestSummarizeWithoutTranscriptsIsFatal(t *testing.T) {
	cfg := testConfig(t)
	p := NewProcessor(cfg, Deps{Generator: &fakeGen{prompts: cfg.Pipeline}}, nil)

	_, err := p.Summarize(context.Background())
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
	assert.ErrorIs(t, err, common.ErrNoWork)
}

func TestNeedsScreenshots(t *testing.T) {
	tests := map[string]bool{
		"True":  true,
		"TRUE":  true,
		"tRUE":  true,
		"fAlSe": false,
		"true ": true,
		"False": false,
		"":      false,
		"maybe": false,
	}
	for in, want := range tests {
		assert.Equal(t, want, NeedsScreenshots(table.Record{constants.ColNeedsScreenshots: in}), in)
	}
	assert.False(t, NeedsScreenshots(table.Record{}))
}

func TestFlaggedVideosDecidesByFirstRow(t *testing.T) {
	store := table.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Append(constants.ProcessedTranscriptsTable,
		[]string{"Filename", "Summary", "Needs Screenshots"},
		table.Record{"Filename": "a.mp4", "Summary": "first", "Needs Screenshots": "False"},
		table.Record{"Filename": "b.mp4", "Summary": "first", "Needs Screenshots": "True"},
		table.Record{"Filename": "a.mp4", "Summary": "second", "Needs Screenshots": "True"},
		table.Record{"Filename": "b.mp4", "Summary": "second", "Needs Screenshots": "False"},
	))

	flagged, err := FlaggedVideos(store)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "b.mp4", flagged[0]["Filename"])
	assert.Equal(t, "first", flagged[0]["Summary"])
}
