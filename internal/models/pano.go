package models

import (
	"fmt"
	"time"
)

// Face identifies one of the six cube faces. The numeric order is fixed:
// iterating Faces() visits front, right, back, left, up, down, which is
// also the order faces are processed and reported.
type Face int

const (
	FaceFront Face = iota
	FaceRight
	FaceBack
	FaceLeft
	FaceUp
	FaceDown
)

// faceChars are the single-character identifiers used in the tile store
// layout. The viewer resolves tile URLs with these exact characters,
// so they are part of the external contract.
var faceChars = [6]string{"f", "r", "b", "l", "u", "d"}

// String returns the single-character store identifier for the face.
func (f Face) String() string {
	if f < FaceFront || f > FaceDown {
		return "?"
	}
	return faceChars[f]
}

// Faces returns all six faces in processing order.
func Faces() [6]Face {
	return [6]Face{FaceFront, FaceRight, FaceBack, FaceLeft, FaceUp, FaceDown}
}

// LevelSpec describes one resolution level of the pyramid.
type LevelSpec struct {
	// Size is the face side length in pixels at this level.
	Size int

	// TileSize is the side length of each tile at this level.
	// Size is always an integer multiple of TileSize; if a raster
	// arrives with a non-multiple side it is padded, never cropped.
	TileSize int
}

// GridSize returns the number of tile rows (and columns) at this level.
func (l LevelSpec) GridSize() int {
	n := l.Size / l.TileSize
	if l.Size%l.TileSize != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultLevels builds the standard pyramid level list: the highest level
// has side baseSize, each lower level halves the side, and the lowest
// level is a single tile of its own size.
func DefaultLevels(count, baseSize, tileSize int) []LevelSpec {
	levels := make([]LevelSpec, count)
	for i := 0; i < count; i++ {
		size := baseSize >> (count - 1 - i)
		ts := tileSize
		if size <= tileSize {
			// Single-tile level: the tile is the whole face.
			ts = size
		}
		levels[i] = LevelSpec{Size: size, TileSize: ts}
	}
	return levels
}

// TileAddress identifies one persisted tile within a scene.
// Row and Col are 0-indexed from the top-left of the face at that level.
type TileAddress struct {
	Level int
	Face  Face
	Row   int
	Col   int
}

// String formats the address in store-layout order: level/face/row/col.
func (a TileAddress) String() string {
	return fmt.Sprintf("%d/%s/%d/%d", a.Level, a.Face, a.Row, a.Col)
}

// Stage is the state of one image's conversion pipeline.
type Stage int

const (
	StagePending Stage = iota
	StageBuildingFaces
	StageDownsampling
	StageTiling
	StageWritingPreview
	StageComplete
	StageFailed
)

// String returns a human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageBuildingFaces:
		return "building faces"
	case StageDownsampling:
		return "downsampling"
	case StageTiling:
		return "tiling"
	case StageWritingPreview:
		return "writing preview"
	case StageComplete:
		return "complete"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is an immutable snapshot of one image's pipeline state.
// Snapshots are emitted on a caller-supplied channel; nothing in the
// pipeline mutates shared progress state.
type Progress struct {
	SceneID string
	Stage   Stage

	// Face and Level qualify the stage where applicable; Level is -1
	// when the stage is not level-specific.
	Face  Face
	Level int

	// TilesWritten and TilesTotal track persisted tiles across the
	// whole scene, preview excluded.
	TilesWritten int
	TilesTotal   int
}

// ImageResult reports the outcome of one image's pyramid build.
// Err is nil when the pyramid was fully built and the completion
// marker written.
type ImageResult struct {
	SceneID    string
	SourcePath string
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether this image's pyramid is complete.
func (r ImageResult) Succeeded() bool {
	return r.Err == nil
}

// BatchSummary aggregates the per-image results of one batch run.
type BatchSummary struct {
	Results   []ImageResult
	Succeeded int
	Failed    int
}
