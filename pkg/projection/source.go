package projection

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Source wraps a decoded equirectangular panorama as a flat RGBA pixel
// buffer for sampling. Decoding to one contiguous buffer up front keeps
// the per-pixel projection loop free of interface calls and allocations.
type Source struct {
	pix    []uint8
	stride int
	width  int
	height int
}

// NewSource converts an image to a Source. The image is copied into an
// RGBA buffer once; the Source is immutable afterwards and safe for
// concurrent sampling.
func NewSource(img image.Image) *Source {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		tmp := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(tmp, tmp.Bounds(), img, b.Min, draw.Src)
		rgba = tmp
	}
	return &Source{
		pix:    rgba.Pix,
		stride: rgba.Stride,
		width:  b.Dx(),
		height: b.Dy(),
	}
}

// Width returns the source width in pixels.
func (s *Source) Width() int { return s.width }

// Height returns the source height in pixels.
func (s *Source) Height() int { return s.height }

// at reads the pixel at (x, y) with horizontal wrap and vertical clamp.
// Wrapping x keeps sampling continuous across the atan2 seam at u≈0/1;
// clamping y is correct at the poles where v saturates.
func (s *Source) at(x, y int) (r, g, b uint8) {
	x %= s.width
	if x < 0 {
		x += s.width
	}
	if y < 0 {
		y = 0
	} else if y >= s.height {
		y = s.height - 1
	}
	i := y*s.stride + x*4
	return s.pix[i], s.pix[i+1], s.pix[i+2]
}

// SampleNearest samples the source at normalized coordinates (u, v) with
// nearest-neighbor filtering.
func (s *Source) SampleNearest(u, v float64) color.RGBA {
	x := int(u * float64(s.width))
	y := int(v * float64(s.height))
	r, g, b := s.at(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// SampleBilinear samples the source at normalized coordinates (u, v)
// with bilinear filtering. The interpolation neighborhood wraps across
// the horizontal seam, so faces that straddle u≈0/1 (the back face)
// blend smoothly instead of showing a vertical seam line.
func (s *Source) SampleBilinear(u, v float64) color.RGBA {
	// Shift by half a pixel so interpolation is between pixel centers.
	fx := u*float64(s.width) - 0.5
	fy := v*float64(s.height) - 0.5

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	r00, g00, b00 := s.at(x0, y0)
	r10, g10, b10 := s.at(x0+1, y0)
	r01, g01, b01 := s.at(x0, y0+1)
	r11, g11, b11 := s.at(x0+1, y0+1)

	lerp2 := func(c00, c10, c01, c11 uint8) uint8 {
		top := float64(c00)*(1-dx) + float64(c10)*dx
		bot := float64(c01)*(1-dx) + float64(c11)*dx
		return uint8(top*(1-dy) + bot*dy + 0.5)
	}

	return color.RGBA{
		R: lerp2(r00, r10, r01, r11),
		G: lerp2(g00, g10, g01, g11),
		B: lerp2(b00, b10, b01, b11),
		A: 0xff,
	}
}
