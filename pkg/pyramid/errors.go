package pyramid

import (
	"fmt"

	"panotiler/internal/models"
)

// SourceReadError reports a source panorama that is missing, unreadable
// or not decodable. It aborts only the affected image's job.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("failed to read source image %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// GeometryError reports a violated projection invariant, such as a
// face/basis pairing yielding a non-unit direction. It is a defect, not
// an environmental failure, and fails the job immediately with the face
// and pixel that triggered it.
type GeometryError struct {
	Face   models.Face
	X, Y   int
	Detail string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("projection invariant violated on face %s at (%d,%d): %s",
		e.Face, e.X, e.Y, e.Detail)
}

// WriteError reports a failed persist of one tile or the preview,
// carrying the full tile address so the failure is reproducible without
// re-running the batch.
type WriteError struct {
	SceneID string
	Addr    models.TileAddress
	Preview bool
	Err     error
}

func (e *WriteError) Error() string {
	if e.Preview {
		return fmt.Sprintf("scene %s: failed to write preview: %v", e.SceneID, e.Err)
	}
	return fmt.Sprintf("scene %s: failed to write tile %s: %v", e.SceneID, e.Addr, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PartialPyramidError marks an image whose pyramid is incomplete: some
// required tile or the preview failed, so the scene must be reported
// failed even if most files exist. The completion marker is never
// written for a scene that fails this way.
type PartialPyramidError struct {
	SceneID string
	Err     error
}

func (e *PartialPyramidError) Error() string {
	return fmt.Sprintf("scene %s: pyramid incomplete: %v", e.SceneID, e.Err)
}

func (e *PartialPyramidError) Unwrap() error { return e.Err }
