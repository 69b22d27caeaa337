// Package pyramid builds multi-resolution cube-map tile pyramids from
// equirectangular panoramas and persists them through a tile store sink.
package pyramid

import (
	"fmt"
	"image"
	"math"
	"runtime"

	"go.uber.org/zap"

	"panotiler/internal/models"
	"panotiler/pkg/projection"
	"panotiler/pkg/tilestore"
)

// Params holds the build configuration for one scene.
type Params struct {
	// SceneID names the output directory and shows up in every error.
	SceneID string

	// Levels is the resolution level list, lowest first. The last
	// level's Size is the base face side length.
	Levels []models.LevelSpec

	// NumCores bounds the per-face projection and tile-write
	// parallelism. Zero means all available cores.
	NumCores int

	// PreviewFaceSize is the per-face side length in the composite
	// preview cross. Zero defaults to 256.
	PreviewFaceSize int

	// Progress, if non-nil, receives immutable pipeline snapshots.
	// The caller must drain the channel for the build to proceed.
	Progress chan<- models.Progress

	// Log, if non-nil, receives structured build logging.
	Log *zap.Logger
}

// Builder converts one source panorama into a complete tile pyramid.
//
// Faces are processed one at a time: each face is projected at base
// resolution, resized down through the levels, tiled and persisted, then
// released before the next face starts. Peak memory is therefore one
// base-resolution face plus its current level raster, independent of
// the level count.
type Builder struct {
	params Params
	src    *projection.Source
	sink   tilestore.Sink
	log    *zap.Logger

	tilesTotal   int
	tilesWritten int
	previews     [6]*image.RGBA
	metrics      Metrics
}

// NewBuilder creates a builder for one scene.
func NewBuilder(src *projection.Source, sink tilestore.Sink, params Params) *Builder {
	if params.NumCores < 1 {
		params.NumCores = runtime.NumCPU()
	}
	if params.PreviewFaceSize < 1 {
		params.PreviewFaceSize = 256
	}
	log := params.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{params: params, src: src, sink: sink, log: log}
}

// Metrics returns the quality metrics gathered during Process.
func (b *Builder) Metrics() Metrics {
	return b.metrics
}

// Process runs the full pipeline: project all six faces, derive every
// resolution level, tile and persist each level, write the composite
// preview, and finally write the completion marker. The marker is
// written only after every other file has been persisted, so its
// presence is the downstream signal that the pyramid is complete.
//
// The build fails fast: the first tile that cannot be rendered or
// persisted aborts the scene with a PartialPyramidError identifying the
// failing (level, face, row, column), and no marker is written.
func (b *Builder) Process() error {
	b.emit(models.StagePending, models.FaceFront, -1)

	if err := b.validate(); err != nil {
		b.emit(models.StageFailed, models.FaceFront, -1)
		return err
	}

	if err := b.sink.Prepare(b.params.SceneID); err != nil {
		b.emit(models.StageFailed, models.FaceFront, -1)
		return &PartialPyramidError{SceneID: b.params.SceneID, Err: err}
	}

	baseSize := b.params.Levels[len(b.params.Levels)-1].Size
	for _, spec := range b.params.Levels {
		g := spec.GridSize()
		b.tilesTotal += 6 * g * g
	}

	b.log.Info("building pyramid",
		zap.String("scene", b.params.SceneID),
		zap.Int("levels", len(b.params.Levels)),
		zap.Int("baseFaceSize", baseSize),
		zap.Int("tiles", b.tilesTotal))

	for _, face := range models.Faces() {
		if err := b.processFace(face, baseSize); err != nil {
			b.emit(models.StageFailed, face, -1)
			return err
		}
	}

	b.emit(models.StageWritingPreview, models.FaceFront, -1)
	if err := b.sink.WritePreview(b.params.SceneID, ComposePreview(b.previews)); err != nil {
		b.emit(models.StageFailed, models.FaceFront, -1)
		return &PartialPyramidError{
			SceneID: b.params.SceneID,
			Err:     &WriteError{SceneID: b.params.SceneID, Preview: true, Err: err},
		}
	}

	if err := b.sink.WriteMarker(b.params.SceneID); err != nil {
		b.emit(models.StageFailed, models.FaceFront, -1)
		return &PartialPyramidError{
			SceneID: b.params.SceneID,
			Err:     fmt.Errorf("failed to write completion marker: %w", err),
		}
	}

	b.emit(models.StageComplete, models.FaceFront, -1)
	b.log.Info("pyramid complete",
		zap.String("scene", b.params.SceneID),
		zap.Int("tiles", b.tilesWritten))
	b.log.Debug("pyramid metrics",
		zap.String("scene", b.params.SceneID),
		zap.Float64("frontMeanLuma", b.metrics.Faces[models.FaceFront].MeanLuma),
		zap.Float64("frontLumaStdDev", b.metrics.Faces[models.FaceFront].StdDevLuma),
		zap.Float64("levelDrift", b.metrics.LevelDrift))
	return nil
}

func (b *Builder) validate() error {
	if len(b.params.Levels) == 0 {
		return fmt.Errorf("scene %s: no resolution levels configured", b.params.SceneID)
	}
	for i, spec := range b.params.Levels {
		if spec.Size < 1 || spec.TileSize < 1 {
			return fmt.Errorf("scene %s: level %d has invalid spec %dpx/%dpx",
				b.params.SceneID, i, spec.Size, spec.TileSize)
		}
		if i > 0 && spec.Size <= b.params.Levels[i-1].Size {
			return fmt.Errorf("scene %s: level sizes must increase, level %d is %d after %d",
				b.params.SceneID, i, spec.Size, b.params.Levels[i-1].Size)
		}
	}

	// The source must cover the full sphere; a far-off aspect ratio is
	// almost always a cropped or non-equirectangular input.
	w, h := b.src.Width(), b.src.Height()
	if ratio := float64(w) / float64(h); math.Abs(ratio-2) > 0.1 {
		b.log.Warn("source aspect ratio is not 2:1, output will be distorted",
			zap.String("scene", b.params.SceneID),
			zap.Int("width", w), zap.Int("height", h))
	}

	return b.checkBases()
}

// checkBases verifies the face/basis table invariant: every face center
// must project to a unit vector equal to the face normal. A violation
// is a defect in the basis table, not a recoverable condition.
func (b *Builder) checkBases() error {
	for _, face := range models.Faces() {
		dir := projection.FaceCoordinateToDirection(face, 0, 0, 1)
		if math.Abs(dir.Length()-1) > 1e-9 {
			return &GeometryError{Face: face, Detail: "center direction is not unit length"}
		}
		fwd := projection.FaceBasis(face).Forward
		if math.Abs(dir.X-fwd.X) > 1e-9 || math.Abs(dir.Y-fwd.Y) > 1e-9 || math.Abs(dir.Z-fwd.Z) > 1e-9 {
			return &GeometryError{Face: face, Detail: "center direction does not match face normal"}
		}
	}
	return nil
}

// processFace runs the full per-face pipeline: base projection, level
// derivation, tiling and persistence.
func (b *Builder) processFace(face models.Face, baseSize int) error {
	b.emit(models.StageBuildingFaces, face, -1)
	b.log.Debug("projecting face",
		zap.String("scene", b.params.SceneID),
		zap.String("face", face.String()),
		zap.Int("size", baseSize))

	base := BuildFaceRaster(b.src, face, baseSize, b.params.NumCores)
	b.metrics.Faces[face] = faceStats(face, base)
	b.previews[face] = Downsample(base, b.params.PreviewFaceSize)

	for level, spec := range b.params.Levels {
		b.emit(models.StageDownsampling, face, level)
		raster := Downsample(base, spec.Size)
		if face == models.FaceFront {
			b.metrics.recordLevel(raster)
		}

		b.emit(models.StageTiling, face, level)
		if err := b.persistLevel(face, level, raster, spec.TileSize); err != nil {
			return err
		}
	}

	return nil
}

// persistLevel tiles one level raster and writes the tiles through the
// sink, fanning the independent encode+write work out to goroutines and
// collecting tagged results, failing on the first error in grid order.
func (b *Builder) persistLevel(face models.Face, level int, raster *image.RGBA, tileSize int) error {
	tiles := SplitIntoTiles(raster, tileSize)

	type writeResult struct {
		addr models.TileAddress
		err  error
	}
	resultChan := make(chan writeResult)
	sem := make(chan struct{}, b.params.NumCores)

	for _, tile := range tiles {
		addr := models.TileAddress{Level: level, Face: face, Row: tile.Row, Col: tile.Col}
		go func(addr models.TileAddress, img *image.RGBA) {
			sem <- struct{}{}
			err := b.sink.WriteTile(b.params.SceneID, addr, img)
			<-sem
			resultChan <- writeResult{addr: addr, err: err}
		}(addr, tile.Img)
	}

	// Collect every result before failing so no goroutine is left
	// blocked; report the failure with the lowest grid address to keep
	// error output stable across runs.
	var first *WriteError
	for range tiles {
		res := <-resultChan
		if res.err == nil {
			continue
		}
		if first == nil || res.addr.Row < first.Addr.Row ||
			(res.addr.Row == first.Addr.Row && res.addr.Col < first.Addr.Col) {
			first = &WriteError{SceneID: b.params.SceneID, Addr: res.addr, Err: res.err}
		}
	}
	if first != nil {
		b.log.Error("tile write failed",
			zap.String("scene", b.params.SceneID),
			zap.String("tile", first.Addr.String()),
			zap.Error(first.Err))
		return &PartialPyramidError{SceneID: b.params.SceneID, Err: first}
	}

	b.tilesWritten += len(tiles)
	return nil
}

// emit sends a progress snapshot if a progress channel was provided.
func (b *Builder) emit(stage models.Stage, face models.Face, level int) {
	if b.params.Progress == nil {
		return
	}
	b.params.Progress <- models.Progress{
		SceneID:      b.params.SceneID,
		Stage:        stage,
		Face:         face,
		Level:        level,
		TilesWritten: b.tilesWritten,
		TilesTotal:   b.tilesTotal,
	}
}
