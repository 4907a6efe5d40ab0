package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
)

// Video is one discovered input file.
type Video struct {
	Path     string
	Filename string // base name, the key in every table
	Base     string // filename without extension
	Size     int64
}

type DirStats struct {
	Scanned uint32
	Matched uint32
	Hidden  uint32
	Bytes   int64
}

// ListVideos returns the supported videos directly under root, sorted by name.
// A missing directory and a directory with no videos are both fatal.
func ListVideos(root string) ([]Video, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.FatalError("NO_VIDEO_DIR", errors.New("video directory is required"))
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, stats, common.FatalError("NO_VIDEO_DIR", fmt.Errorf("video directory %s: %w", root, err))
	}
	if !fi.IsDir() {
		return nil, stats, common.FatalError("NO_VIDEO_DIR", fmt.Errorf("%s is not a directory", root))
	}

	var videos []Video
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		// flat layout: never descend
		if d.IsDir() {
			return filepath.SkipDir
		}
		stats.Scanned++
		if isHidden(path) {
			stats.Hidden++
			return nil
		}
		if !constants.IsVideo(filepath.Ext(path)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		videos = append(videos, Video{
			Path:     path,
			Filename: name,
			Base:     strings.TrimSuffix(name, filepath.Ext(name)),
			Size:     info.Size(),
		})
		stats.Matched++
		stats.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, stats, common.FatalError("NO_VIDEO_DIR", fmt.Errorf("walk: %w", err))
	}
	if len(videos) == 0 {
		return nil, stats, common.FatalError("NO_VIDEOS", fmt.Errorf("%w: no video files in %s", common.ErrNoWork, root))
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Filename < videos[j].Filename })
	return videos, stats, nil
}

// BaseName strips the extension from a table key.
func BaseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
