// Package tilestore persists pyramid output in the directory layout the
// viewer consumes:
//
//	<root>/<sceneId>/<level>/<face>/<row>/<column>.<ext>
//	<root>/<sceneId>/preview.<ext>
//	<root>/<sceneId>/.complete
//
// The layout is a bit-exact external contract: level is the integer
// resolution level (0 = lowest), face is the single-character face id,
// and row/column are 0-indexed tile coordinates. The .complete marker is
// written only after every tile and the preview exist, so readers can
// distinguish a finished pyramid from an aborted one.
package tilestore

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"panotiler/internal/models"
)

// MarkerName is the completion sentinel file written into a scene
// directory after a successful build.
const MarkerName = ".complete"

// Sink is the durable-write abstraction the pyramid builder persists
// through. Prepare is called once before any write and must clear any
// stale completion marker. Implementations must make WriteTile and
// WritePreview durable before returning; WriteMarker is called exactly
// once, after every other write has succeeded.
type Sink interface {
	Prepare(sceneID string) error
	WriteTile(sceneID string, addr models.TileAddress, img image.Image) error
	WritePreview(sceneID string, img image.Image) error
	WriteMarker(sceneID string) error
}

// Options configures a filesystem store.
type Options struct {
	// Format is "jpg", "jpeg" or "png".
	Format string

	// TileQuality and PreviewQuality are JPEG qualities; ignored for png.
	TileQuality    int
	PreviewQuality int
}

// DefaultOptions returns JPEG output with the standard qualities.
func DefaultOptions() Options {
	return Options{Format: "jpg", TileQuality: 90, PreviewQuality: 85}
}

// FSStore is a Sink writing tiles under a root directory.
type FSStore struct {
	root string
	opts Options
}

// NewFSStore creates a filesystem store rooted at root.
func NewFSStore(root string, opts Options) *FSStore {
	if opts.Format == "" {
		opts = DefaultOptions()
	}
	return &FSStore{root: root, opts: opts}
}

// Ext returns the file extension used for tiles and the preview.
func (s *FSStore) Ext() string {
	if s.opts.Format == "png" {
		return "png"
	}
	return "jpg"
}

// SceneDir returns the output directory for a scene.
func (s *FSStore) SceneDir(sceneID string) string {
	return filepath.Join(s.root, sceneID)
}

// TilePath returns the path a tile is stored at.
func (s *FSStore) TilePath(sceneID string, addr models.TileAddress) string {
	return filepath.Join(s.SceneDir(sceneID),
		strconv.Itoa(addr.Level),
		addr.Face.String(),
		strconv.Itoa(addr.Row),
		strconv.Itoa(addr.Col)+"."+s.Ext())
}

// PreviewPath returns the path of the composite preview image.
func (s *FSStore) PreviewPath(sceneID string) string {
	return filepath.Join(s.SceneDir(sceneID), "preview."+s.Ext())
}

// MarkerPath returns the path of the completion marker.
func (s *FSStore) MarkerPath(sceneID string) string {
	return filepath.Join(s.SceneDir(sceneID), MarkerName)
}

// Prepare clears any stale completion marker and ensures the scene
// directory exists. A rebuild overwrites tiles in place, but the marker
// must disappear first so a concurrent reader never sees a half-rebuilt
// pyramid as complete.
func (s *FSStore) Prepare(sceneID string) error {
	if err := os.MkdirAll(s.SceneDir(sceneID), 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	if err := os.Remove(s.MarkerPath(sceneID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale completion marker: %w", err)
	}
	return nil
}

// WriteTile encodes and persists one tile.
func (s *FSStore) WriteTile(sceneID string, addr models.TileAddress, img image.Image) error {
	path := s.TilePath(sceneID, addr)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}
	return s.encodeToFile(path, img, s.opts.TileQuality)
}

// WritePreview encodes and persists the composite preview.
func (s *FSStore) WritePreview(sceneID string, img image.Image) error {
	if err := os.MkdirAll(s.SceneDir(sceneID), 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	return s.encodeToFile(s.PreviewPath(sceneID), img, s.opts.PreviewQuality)
}

// WriteMarker writes the zero-length completion sentinel.
func (s *FSStore) WriteMarker(sceneID string) error {
	return os.WriteFile(s.MarkerPath(sceneID), nil, 0644)
}

// HasMarker reports whether a scene's pyramid is marked complete.
func (s *FSStore) HasMarker(sceneID string) bool {
	_, err := os.Stat(s.MarkerPath(sceneID))
	return err == nil
}

func (s *FSStore) encodeToFile(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch s.opts.Format {
	case "png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
