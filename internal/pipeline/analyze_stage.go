package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/scenes"
	"github.com/joseph-ayodele/video-insights/internal/stage"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

// AnalyzeStage reads the flagged videos' screenshots and writes one record per video.
type AnalyzeStage struct {
	store     *table.Store
	videoDir  string
	extractor *scenes.Extractor
	analyzer  *scenes.Analyzer
	extract   bool
}

// NewAnalyzeStage builds the stage. With extract false only images already
// on disk are analyzed.
func NewAnalyzeStage(store *table.Store, videoDir string, ex *scenes.Extractor, an *scenes.Analyzer, extract bool) *AnalyzeStage {
	return &AnalyzeStage{store: store, videoDir: videoDir, extractor: ex, analyzer: an, extract: extract}
}

var _ stage.Stage = (*AnalyzeStage)(nil)

// ExistingOnly returns a copy that never extracts, for use after the
// screenshot pre-pass has already attempted every flagged video.
func (s *AnalyzeStage) ExistingOnly() *AnalyzeStage {
	c := *s
	c.extract = false
	return &c
}

func (s *AnalyzeStage) Name() string     { return constants.StageAnalyze }
func (s *AnalyzeStage) Table() string    { return constants.ScreenshotsTable }
func (s *AnalyzeStage) Header() []string { return s.analyzer.Header() }

func (s *AnalyzeStage) Load(context.Context) ([]stage.WorkItem, error) {
	recs, err := FlaggedVideos(s.store)
	if err != nil {
		return nil, err
	}
	items := make([]stage.WorkItem, 0, len(recs))
	for _, rec := range recs {
		key := strings.TrimSpace(rec[constants.ColFilename])
		items = append(items, stage.WorkItem{
			Key:    key,
			Path:   filepath.Join(s.videoDir, key),
			Source: rec,
		})
	}
	return items, nil
}

func (s *AnalyzeStage) Process(ctx context.Context, item stage.WorkItem) (table.Record, error) {
	var (
		group scenes.ArtifactGroup
		err   error
	)
	if s.extract {
		group, err = s.extractor.Ensure(ctx, item.Path)
	} else {
		group, err = s.extractor.Existing(item.Key)
	}
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(ctx, item.Key, group)
}

func (s *AnalyzeStage) Placeholder(item stage.WorkItem, err error) table.Record {
	return s.analyzer.Placeholder(item.Key, err)
}

// NeedsScreenshots parses the flag column case-insensitively. Missing or
// unparseable means false.
func NeedsScreenshots(rec table.Record) bool {
	v, err := cast.ToBoolE(strings.ToLower(strings.TrimSpace(rec[constants.ColNeedsScreenshots])))
	return err == nil && v
}

// FlaggedVideos returns the processed-transcript rows whose flag is true, in
// table order. A repeated key is decided by its first row only.
func FlaggedVideos(store *table.Store) ([]table.Record, error) {
	t, err := store.ReadAll(constants.ProcessedTranscriptsTable)
	if err != nil {
		if errors.Is(err, table.ErrNotFound) {
			return nil, common.FatalError("NO_INPUT", fmt.Errorf("%w: %s is missing, run summarize first", common.ErrNoWork, constants.ProcessedTranscriptsTable))
		}
		return nil, common.FatalError("STORE_READ", err)
	}
	seen := map[string]struct{}{}
	var out []table.Record
	for _, rec := range t.Records {
		key := strings.TrimSpace(rec[constants.ColFilename])
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if NeedsScreenshots(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
