package scenes

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/video-insights/internal/ingest"
	"github.com/joseph-ayodele/video-insights/internal/media"
)

// ArtifactGroup is the set of still images extracted for one video.
type ArtifactGroup struct {
	Dir    string
	Images []string
	Reused bool
}

// Extractor owns the per-video screenshot directories under root. A directory
// that already holds images counts as done and is never re-extracted.
type Extractor struct {
	media     media.SceneExtractor
	root      string
	threshold float64
	fallback  float64
	logger    *slog.Logger
}

func NewExtractor(ex media.SceneExtractor, root string, threshold, fallback float64, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		media:     ex,
		root:      root,
		threshold: threshold,
		fallback:  fallback,
		logger:    logger,
	}
}

// Dir is the artifact directory for a video key or path.
func (e *Extractor) Dir(video string) string {
	return filepath.Join(e.root, ingest.BaseName(filepath.Base(video)))
}

// Existing lists the images already on disk for a video without extracting.
func (e *Extractor) Existing(video string) (ArtifactGroup, error) {
	dir := e.Dir(video)
	images, err := media.ListImages(dir)
	if err != nil {
		return ArtifactGroup{}, fmt.Errorf("list screenshots %s: %w", dir, err)
	}
	return ArtifactGroup{Dir: dir, Images: images, Reused: len(images) > 0}, nil
}

// Ensure returns the video's artifacts, extracting them if the directory has
// none. Zero images at the primary threshold triggers exactly one more
// extraction at the fallback threshold.
func (e *Extractor) Ensure(ctx context.Context, videoPath string) (ArtifactGroup, error) {
	group, err := e.Existing(videoPath)
	if err != nil {
		return group, err
	}
	name := filepath.Base(videoPath)
	if group.Reused {
		e.logger.Info("scenes.extract.reuse", "video", name, "images", len(group.Images))
		return group, nil
	}

	images, err := e.extract(ctx, videoPath, group.Dir, e.threshold)
	if err != nil {
		return group, err
	}
	if len(images) == 0 {
		e.logger.Warn("scenes.extract.fallback", "video", name, "threshold", e.threshold, "fallback", e.fallback)
		if images, err = e.extract(ctx, videoPath, group.Dir, e.fallback); err != nil {
			return group, err
		}
	}
	if len(images) == 0 {
		e.logger.Warn("scenes.extract.empty", "video", name)
	} else {
		e.logger.Info("scenes.extract.ok", "video", name, "images", len(images))
	}
	group.Images = images
	return group, nil
}

func (e *Extractor) extract(ctx context.Context, videoPath, dir string, threshold float64) ([]string, error) {
	if err := e.media.ExtractScenes(ctx, videoPath, dir, threshold); err != nil {
		return nil, err
	}
	images, err := media.ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("list screenshots %s: %w", dir, err)
	}
	return images, nil
}
