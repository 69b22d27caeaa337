package pyramid

import (
	"image"
	"sync"

	"github.com/anthonynsimon/bild/transform"

	"panotiler/internal/models"
	"panotiler/pkg/projection"
)

// BuildFaceRaster projects one cube face out of the source panorama at
// the given side length. Every output pixel is independent, so rows are
// partitioned across numWorkers goroutines; each worker writes only its
// own rows of the pre-allocated buffer, which makes the output
// byte-identical to a sequential run.
func BuildFaceRaster(src *projection.Source, face models.Face, side, numWorkers int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, side, side))

	if numWorkers < 1 {
		numWorkers = 1
	}
	rowsPerWorker := (side + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := startRow + rowsPerWorker
		if endRow > side {
			endRow = side
		}
		if startRow >= endRow {
			break
		}

		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				i := out.PixOffset(0, y)
				for x := 0; x < side; x++ {
					dir := projection.FaceCoordinateToDirection(face, x, y, side)
					u, v := projection.DirectionToEquirectangular(dir)
					c := src.SampleBilinear(u, v)
					out.Pix[i] = c.R
					out.Pix[i+1] = c.G
					out.Pix[i+2] = c.B
					out.Pix[i+3] = 0xff
					i += 4
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	return out
}

// Downsample produces a square raster at targetSide from a
// higher-resolution square raster using Lanczos resampling. Lanczos is
// a proper low-pass filter; point sampling here would alias badly at
// the low zoom levels the viewer shows first.
func Downsample(raster *image.RGBA, targetSide int) *image.RGBA {
	if raster.Bounds().Dx() == targetSide && raster.Bounds().Dy() == targetSide {
		return raster
	}
	return transform.Resize(raster, targetSide, targetSide, transform.Lanczos)
}
