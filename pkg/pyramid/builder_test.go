package pyramid

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"panotiler/internal/models"
	"panotiler/pkg/projection"
	"panotiler/pkg/tilestore"
)

// newSolidSource builds a solid-color equirectangular source
func newSolidSource(w, h int, c color.RGBA) *projection.Source {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 0xff
	}
	return projection.NewSource(img)
}

// newGradientSource builds a source with horizontal and vertical ramps
// so projection mistakes show up as byte differences
func newGradientSource(w, h int) *projection.Source {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) % 256),
				A: 0xff,
			})
		}
	}
	return projection.NewSource(img)
}

func createTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pyramid-test-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// pngStore returns a lossless store so tests can compare exact pixels
func pngStore(root string) *tilestore.FSStore {
	return tilestore.NewFSStore(root, tilestore.Options{Format: "png"})
}

// countTileFiles walks a scene directory counting tile files, the
// preview and the marker separately
func countTileFiles(t *testing.T, sceneDir string) (tiles, previews, markers int) {
	t.Helper()
	err := filepath.WalkDir(sceneDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case d.Name() == tilestore.MarkerName:
			markers++
		case strings.HasPrefix(d.Name(), "preview."):
			previews++
		default:
			tiles++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	return tiles, previews, markers
}

// TestBuildPyramidSolidColor runs the pipeline end to end on a solid
// color source and checks file counts, tile content, preview and marker
func TestBuildPyramidSolidColor(t *testing.T) {
	dir := createTempDir(t)
	store := pngStore(dir)
	fill := color.RGBA{R: 80, G: 120, B: 160, A: 0xff}

	builder := NewBuilder(newSolidSource(256, 128, fill), store, Params{
		SceneID:         "solid",
		Levels:          models.DefaultLevels(2, 128, 64),
		NumCores:        2,
		PreviewFaceSize: 16,
	})
	if err := builder.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// 6 faces x (1 tile at level 0 + 4 tiles at level 1).
	tiles, previews, markers := countTileFiles(t, store.SceneDir("solid"))
	if tiles != 30 {
		t.Errorf("got %d tile files, want 30", tiles)
	}
	if previews != 1 || markers != 1 {
		t.Errorf("got %d previews and %d markers, want 1 and 1", previews, markers)
	}
	if !store.HasMarker("solid") {
		t.Error("completion marker missing after successful build")
	}

	// Every tile of a solid-color panorama is uniform in that color.
	addr := models.TileAddress{Level: 1, Face: models.FaceUp, Row: 1, Col: 0}
	f, err := os.Open(store.TilePath("solid", addr))
	if err != nil {
		t.Fatalf("missing tile %s: %v", addr, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("tile %s not decodable: %v", addr, err)
	}
	b := img.Bounds()
	for _, pt := range []image.Point{{0, 0}, {b.Dx() / 2, b.Dy() / 2}, {b.Dx() - 1, b.Dy() - 1}} {
		r, g, bl, _ := img.At(pt.X, pt.Y).RGBA()
		if uint8(r>>8) != fill.R || uint8(g>>8) != fill.G || uint8(bl>>8) != fill.B {
			t.Fatalf("tile pixel %v = (%d,%d,%d), want (%d,%d,%d)",
				pt, r>>8, g>>8, bl>>8, fill.R, fill.G, fill.B)
		}
	}

	// Metrics: a uniform panorama has zero spread and zero level drift.
	m := builder.Metrics()
	wantLuma := 0.299*float64(fill.R) + 0.587*float64(fill.G) + 0.114*float64(fill.B)
	for _, stats := range m.Faces {
		if diff := stats.MeanLuma - wantLuma; diff > 1 || diff < -1 {
			t.Errorf("face %s mean luma = %v, want ~%v", stats.Face, stats.MeanLuma, wantLuma)
		}
		if stats.StdDevLuma > 1 {
			t.Errorf("face %s luma stddev = %v, want ~0", stats.Face, stats.StdDevLuma)
		}
	}
	if m.LevelDrift > 1 {
		t.Errorf("level drift = %v, want ~0", m.LevelDrift)
	}
}

// TestBuildPyramidFullScale checks the production-default geometry:
// 4 levels from a 4096x2048 source must yield 16 tiles per face at the
// top level, 96 across all faces
func TestBuildPyramidFullScale(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping full-scale pyramid build in short mode")
	}

	dir := createTempDir(t)
	store := tilestore.NewFSStore(dir, tilestore.DefaultOptions())

	builder := NewBuilder(newSolidSource(4096, 2048, color.RGBA{R: 200, A: 0xff}), store, Params{
		SceneID: "full",
		Levels:  models.DefaultLevels(4, 2048, 512),
	})
	if err := builder.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	topTiles := 0
	for _, face := range models.Faces() {
		for row := 0; row < 4; row++ {
			for col := 0; col < 4; col++ {
				addr := models.TileAddress{Level: 3, Face: face, Row: row, Col: col}
				if _, err := os.Stat(store.TilePath("full", addr)); err != nil {
					t.Errorf("missing top-level tile %s", addr)
					continue
				}
				topTiles++
			}
		}
	}
	if topTiles != 96 {
		t.Errorf("got %d top-level tiles, want 96", topTiles)
	}

	// 6 faces x (1 + 1 + 4 + 16) tiles plus preview and marker.
	tiles, previews, markers := countTileFiles(t, store.SceneDir("full"))
	if tiles != 132 || previews != 1 || markers != 1 {
		t.Errorf("file counts = %d/%d/%d, want 132/1/1", tiles, previews, markers)
	}
}

// failingSink rejects tile writes after a fixed number of successes
type failingSink struct {
	inner     tilestore.Sink
	mu        sync.Mutex
	remaining int
}

func (s *failingSink) Prepare(sceneID string) error { return s.inner.Prepare(sceneID) }

func (s *failingSink) WriteTile(sceneID string, addr models.TileAddress, img image.Image) error {
	s.mu.Lock()
	ok := s.remaining > 0
	s.remaining--
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("disk full")
	}
	return s.inner.WriteTile(sceneID, addr, img)
}

func (s *failingSink) WritePreview(sceneID string, img image.Image) error {
	return s.inner.WritePreview(sceneID, img)
}

func (s *failingSink) WriteMarker(sceneID string) error {
	return s.inner.WriteMarker(sceneID)
}

// TestBuildPyramidWriteFailure verifies fail-fast semantics: a sink that
// starts rejecting writes mid-build must fail the scene with full tile
// context, and no completion marker may appear even though some tiles
// were persisted
func TestBuildPyramidWriteFailure(t *testing.T) {
	dir := createTempDir(t)
	store := pngStore(dir)
	sink := &failingSink{inner: store, remaining: 8}

	builder := NewBuilder(newGradientSource(256, 128), sink, Params{
		SceneID:         "broken",
		Levels:          models.DefaultLevels(2, 128, 64),
		PreviewFaceSize: 16,
	})

	err := builder.Process()
	if err == nil {
		t.Fatal("Process succeeded with a failing sink")
	}

	var partial *PartialPyramidError
	if !errors.As(err, &partial) {
		t.Fatalf("error is %T, want *PartialPyramidError", err)
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error chain misses *WriteError: %v", err)
	}
	if werr.SceneID != "broken" {
		t.Errorf("WriteError scene = %q, want broken", werr.SceneID)
	}

	if store.HasMarker("broken") {
		t.Error("completion marker written for a failed build")
	}
}

// TestBuildPyramidDeterminism verifies that worker count does not change
// a single output byte
func TestBuildPyramidDeterminism(t *testing.T) {
	src := newGradientSource(256, 128)
	levels := models.DefaultLevels(2, 128, 64)

	roots := [2]string{createTempDir(t), createTempDir(t)}
	cores := [2]int{1, 4}

	for i := 0; i < 2; i++ {
		builder := NewBuilder(src, pngStore(roots[i]), Params{
			SceneID:         "det",
			Levels:          levels,
			NumCores:        cores[i],
			PreviewFaceSize: 16,
		})
		if err := builder.Process(); err != nil {
			t.Fatalf("Process with %d cores failed: %v", cores[i], err)
		}
	}

	err := filepath.WalkDir(filepath.Join(roots[0], "det"), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(roots[0], path)
		if err != nil {
			return err
		}
		a, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(filepath.Join(roots[1], rel))
		if err != nil {
			return fmt.Errorf("file %s missing in second run: %w", rel, err)
		}
		if !bytes.Equal(a, b) {
			return fmt.Errorf("file %s differs between 1-core and 4-core runs", rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestBuildPyramidProgress verifies the pipeline emits snapshots through
// the expected stage sequence and ends Complete with all tiles counted
func TestBuildPyramidProgress(t *testing.T) {
	dir := createTempDir(t)

	ch := make(chan models.Progress, 8)
	var snaps []models.Progress
	done := make(chan struct{})
	go func() {
		for p := range ch {
			snaps = append(snaps, p)
		}
		close(done)
	}()

	builder := NewBuilder(newSolidSource(128, 64, color.RGBA{R: 50, A: 0xff}), pngStore(dir), Params{
		SceneID:         "prog",
		Levels:          models.DefaultLevels(1, 64, 64),
		PreviewFaceSize: 8,
		Progress:        ch,
	})
	if err := builder.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	close(ch)
	<-done

	if len(snaps) == 0 {
		t.Fatal("no progress snapshots emitted")
	}
	if snaps[0].Stage != models.StagePending {
		t.Errorf("first stage = %v, want pending", snaps[0].Stage)
	}
	if snaps[1].Stage != models.StageBuildingFaces {
		t.Errorf("second stage = %v, want building faces", snaps[1].Stage)
	}
	last := snaps[len(snaps)-1]
	if last.Stage != models.StageComplete {
		t.Errorf("last stage = %v, want complete", last.Stage)
	}
	if last.TilesWritten != last.TilesTotal || last.TilesTotal != 6 {
		t.Errorf("final tile count = %d/%d, want 6/6", last.TilesWritten, last.TilesTotal)
	}

	sawPreview := false
	for _, p := range snaps {
		if p.Stage == models.StageWritingPreview {
			sawPreview = true
		}
		if p.Stage == models.StageFailed {
			t.Errorf("unexpected failed snapshot: %+v", p)
		}
	}
	if !sawPreview {
		t.Error("no writing-preview snapshot emitted")
	}
}
