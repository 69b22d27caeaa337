package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"panotiler/internal/models"
	"panotiler/pkg/pyramid"
	"panotiler/pkg/tilestore"
)

func createTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "batch-test-*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// writePanorama writes a small solid-color equirectangular JPEG
func writePanorama(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 64))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 0xff
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode %s: %v", path, err)
	}
}

func testRunner(outRoot string) (*Runner, *tilestore.FSStore) {
	store := tilestore.NewFSStore(outRoot, tilestore.DefaultOptions())
	return &Runner{
		Sink:            store,
		Levels:          models.DefaultLevels(1, 64, 64),
		NumCores:        2,
		PreviewFaceSize: 8,
	}, store
}

// TestSceneID verifies scene id derivation from source filenames
func TestSceneID(t *testing.T) {
	cases := map[string]string{
		"/tours/Living Room.jpg": "Living_Room",
		"pano.png":               "pano",
		"a/b/c.d.jpeg":           "c.d",
	}
	for path, want := range cases {
		if got := SceneID(path); got != want {
			t.Errorf("SceneID(%q) = %q, want %q", path, got, want)
		}
	}
}

// TestDiscoverImages verifies extension filtering and deterministic order
func TestDiscoverImages(t *testing.T) {
	dir := createTempDir(t)
	for _, name := range []string{"b.jpg", "a.png", "notes.txt", "c.JPEG"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	paths, err := DiscoverImages(dir)
	if err != nil {
		t.Fatalf("DiscoverImages failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d images, want 3", len(paths))
	}
	for i, want := range []string{"a.png", "b.jpg", "c.JPEG"} {
		if filepath.Base(paths[i]) != want {
			t.Errorf("paths[%d] = %s, want %s", i, filepath.Base(paths[i]), want)
		}
	}

	if _, err := DiscoverImages(createTempDir(t)); err == nil {
		t.Error("DiscoverImages on an empty folder should fail")
	}
}

// TestBatchFailureIsolation runs three images where the middle one is
// corrupt: the batch must report {ok, SourceReadError, ok} and both
// valid pyramids must be complete with markers
func TestBatchFailureIsolation(t *testing.T) {
	srcDir := createTempDir(t)
	outDir := createTempDir(t)

	writePanorama(t, filepath.Join(srcDir, "a.jpg"), color.RGBA{R: 200, A: 0xff})
	if err := os.WriteFile(filepath.Join(srcDir, "b.jpg"), []byte("not a jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt image: %v", err)
	}
	writePanorama(t, filepath.Join(srcDir, "c.jpg"), color.RGBA{B: 200, A: 0xff})

	runner, store := testRunner(outDir)
	summary, err := runner.Run(context.Background(), srcDir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %d ok / %d failed, want 2/1", summary.Succeeded, summary.Failed)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(summary.Results))
	}

	if !summary.Results[0].Succeeded() || summary.Results[0].SceneID != "a" {
		t.Errorf("first result = %+v, want scene a succeeded", summary.Results[0])
	}
	var srcErr *pyramid.SourceReadError
	if summary.Results[1].Succeeded() || !errors.As(summary.Results[1].Err, &srcErr) {
		t.Errorf("second result error = %v, want SourceReadError", summary.Results[1].Err)
	}
	if !summary.Results[2].Succeeded() || summary.Results[2].SceneID != "c" {
		t.Errorf("third result = %+v, want scene c succeeded", summary.Results[2])
	}

	if !store.HasMarker("a") || !store.HasMarker("c") {
		t.Error("completed scenes missing completion markers")
	}
	if store.HasMarker("b") {
		t.Error("failed scene has a completion marker")
	}
}

// TestBatchCancellation verifies coarse-grained stop: a canceled context
// prevents any further image from starting
func TestBatchCancellation(t *testing.T) {
	srcDir := createTempDir(t)
	outDir := createTempDir(t)
	writePanorama(t, filepath.Join(srcDir, "a.jpg"), color.RGBA{R: 10, A: 0xff})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, _ := testRunner(outDir)
	summary, err := runner.Run(ctx, srcDir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(summary.Results) != 0 {
		t.Errorf("canceled batch attempted %d images, want 0", len(summary.Results))
	}
}
