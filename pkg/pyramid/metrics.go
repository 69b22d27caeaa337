package pyramid

import (
	"image"

	"gonum.org/v1/gonum/stat"

	"panotiler/internal/models"
)

// FaceStats summarizes the luminance distribution of one face at base
// resolution. Wildly divergent stats between faces usually mean a bad
// source (non-2:1 aspect, truncated file) rather than a projection bug,
// but either way they are the first thing to look at.
type FaceStats struct {
	Face       models.Face
	MeanLuma   float64
	StdDevLuma float64
}

// Metrics reports pyramid quality numbers gathered during a build.
type Metrics struct {
	// Faces holds per-face luminance stats at base resolution.
	Faces [6]FaceStats

	// LevelMeanLuma is the mean luminance of the front face at each
	// level, low to high.
	LevelMeanLuma []float64

	// LevelDrift is the largest mean-luminance difference between
	// adjacent levels. A well-behaved downsampling filter keeps this
	// small; large drift indicates the levels are visually inconsistent.
	LevelDrift float64
}

// lumaSamples collects Rec. 601 luminance values from a raster on a
// sparse grid. Sampling a few thousand pixels is plenty for mean and
// spread estimates and keeps metrics off the build's critical path.
func lumaSamples(img *image.RGBA) []float64 {
	side := img.Bounds().Dx()
	step := side / 64
	if step < 1 {
		step = 1
	}

	samples := make([]float64, 0, (side/step+1)*(side/step+1))
	for y := 0; y < side; y += step {
		i := img.PixOffset(0, y)
		for x := 0; x < side; x += step {
			j := i + x*4
			r := float64(img.Pix[j])
			g := float64(img.Pix[j+1])
			b := float64(img.Pix[j+2])
			samples = append(samples, 0.299*r+0.587*g+0.114*b)
		}
	}
	return samples
}

func faceStats(face models.Face, raster *image.RGBA) FaceStats {
	samples := lumaSamples(raster)
	return FaceStats{
		Face:       face,
		MeanLuma:   stat.Mean(samples, nil),
		StdDevLuma: stat.StdDev(samples, nil),
	}
}

// recordLevel folds one level raster of the front face into the metrics.
func (m *Metrics) recordLevel(raster *image.RGBA) {
	mean := stat.Mean(lumaSamples(raster), nil)
	if n := len(m.LevelMeanLuma); n > 0 {
		drift := mean - m.LevelMeanLuma[n-1]
		if drift < 0 {
			drift = -drift
		}
		if drift > m.LevelDrift {
			m.LevelDrift = drift
		}
	}
	m.LevelMeanLuma = append(m.LevelMeanLuma, mean)
}
