// Package batch converts whole folders of equirectangular panoramas,
// running one independent pyramid job per image and reporting per-image
// results. One image failing never aborts the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	// Source panoramas arrive as JPEG or PNG.
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	"panotiler/internal/models"
	"panotiler/pkg/projection"
	"panotiler/pkg/pyramid"
	"panotiler/pkg/tilestore"
)

// Runner drives pyramid builds for a batch of source images.
type Runner struct {
	// Sink receives every job's tiles, previews and markers.
	Sink tilestore.Sink

	// Levels is the resolution ladder applied to every image.
	Levels []models.LevelSpec

	// NumCores bounds per-job parallelism; zero means all cores.
	NumCores int

	// PreviewFaceSize is the per-face side of the preview cross.
	PreviewFaceSize int

	// Progress, if non-nil, receives snapshots from every job.
	Progress chan<- models.Progress

	// Log, if non-nil, receives structured batch and job logging.
	Log *zap.Logger
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// DiscoverImages lists the convertible panoramas in a folder in a
// deterministic (lexical) order.
func DiscoverImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read source folder: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no panorama images found in %s", dir)
	}

	sort.Strings(paths)
	return paths, nil
}

// SceneID derives a scene identifier from a source path: the filename
// stem with spaces replaced by underscores, matching the directory names
// viewers are configured against.
func SceneID(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ReplaceAll(stem, " ", "_")
}

// LoadSource opens and decodes one panorama. Failures are reported as
// SourceReadError so the batch can classify them.
func LoadSource(path string) (*projection.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pyramid.SourceReadError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &pyramid.SourceReadError{Path: path, Err: err}
	}
	return projection.NewSource(img), nil
}

// Run discovers panoramas in inputDir and converts them one after
// another. The returned summary holds one result per attempted image.
// Cancellation is coarse-grained: a canceled context stops the batch
// before the next image starts but never tears down the job in flight,
// and the context error is returned alongside the partial summary.
func (r *Runner) Run(ctx context.Context, inputDir string) (models.BatchSummary, error) {
	paths, err := DiscoverImages(inputDir)
	if err != nil {
		return models.BatchSummary{}, err
	}
	return r.RunPaths(ctx, paths)
}

// RunPaths converts an explicit list of panoramas.
func (r *Runner) RunPaths(ctx context.Context, paths []string) (models.BatchSummary, error) {
	log := r.logger()
	summary := models.BatchSummary{Results: make([]models.ImageResult, 0, len(paths))}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			log.Warn("batch stopped before next image",
				zap.Int("converted", i), zap.Int("remaining", len(paths)-i))
			return summary, err
		}

		log.Info("converting panorama",
			zap.Int("index", i+1), zap.Int("total", len(paths)),
			zap.String("source", path))

		res := r.convertOne(path)
		summary.Results = append(summary.Results, res)
		if res.Succeeded() {
			summary.Succeeded++
			log.Info("panorama converted",
				zap.String("scene", res.SceneID),
				zap.Duration("took", res.Duration))
		} else {
			summary.Failed++
			log.Error("panorama failed",
				zap.String("scene", res.SceneID),
				zap.Error(res.Err))
		}
	}

	return summary, nil
}

// convertOne runs a single image's pipeline. Each job gets its own
// builder and face rasters; nothing is shared between jobs except the
// sink, so one job's failure cannot corrupt another's output.
func (r *Runner) convertOne(path string) models.ImageResult {
	sceneID := SceneID(path)
	start := time.Now()

	src, err := LoadSource(path)
	if err != nil {
		return models.ImageResult{
			SceneID:    sceneID,
			SourcePath: path,
			Err:        err,
			Duration:   time.Since(start),
		}
	}

	builder := pyramid.NewBuilder(src, r.Sink, pyramid.Params{
		SceneID:         sceneID,
		Levels:          r.Levels,
		NumCores:        r.NumCores,
		PreviewFaceSize: r.PreviewFaceSize,
		Progress:        r.Progress,
		Log:             r.Log,
	})

	return models.ImageResult{
		SceneID:    sceneID,
		SourcePath: path,
		Err:        builder.Process(),
		Duration:   time.Since(start),
	}
}
