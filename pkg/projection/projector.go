// Package projection implements the bidirectional mapping between cube-face
// pixel coordinates and locations on an equirectangular panorama.
//
// The cube orientation follows the Three.js BoxGeometry convention so that
// generated faces drop straight into a standard skybox renderer:
//
//	f: front  (+Z)    r: right (+X)    b: back (-Z)
//	l: left   (-X)    u: up    (+Y)    d: down (-Y)
package projection

import (
	"math"

	"panotiler/internal/models"
)

// Vec3 is a 3D direction vector.
type Vec3 struct {
	X, Y, Z float64
}

// Length returns the Euclidean magnitude of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns the vector scaled to unit length.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// Basis defines how a face's 2D pixel grid maps to 3D directions:
// a point at normalized face coordinates (s, t) has direction
// Forward + s*SAxis + t*TAxis before normalization.
type Basis struct {
	Forward Vec3
	SAxis   Vec3
	TAxis   Vec3
}

// faceBases is the fixed face-to-basis lookup table, indexed by
// models.Face. Each entry expands to the vectors used by the original
// converter: r=(1,-t,-s) l=(-1,-t,s) u=(s,1,t) d=(s,-1,-t)
// f=(s,-t,1) b=(-s,-t,-1). A wrong entry silently rotates or mirrors
// a face, so every entry is pinned by a directional test.
var faceBases = [6]Basis{
	models.FaceFront: {
		Forward: Vec3{0, 0, 1},
		SAxis:   Vec3{1, 0, 0},
		TAxis:   Vec3{0, -1, 0},
	},
	models.FaceRight: {
		Forward: Vec3{1, 0, 0},
		SAxis:   Vec3{0, 0, -1},
		TAxis:   Vec3{0, -1, 0},
	},
	models.FaceBack: {
		Forward: Vec3{0, 0, -1},
		SAxis:   Vec3{-1, 0, 0},
		TAxis:   Vec3{0, -1, 0},
	},
	models.FaceLeft: {
		Forward: Vec3{-1, 0, 0},
		SAxis:   Vec3{0, 0, 1},
		TAxis:   Vec3{0, -1, 0},
	},
	models.FaceUp: {
		Forward: Vec3{0, 1, 0},
		SAxis:   Vec3{1, 0, 0},
		TAxis:   Vec3{0, 0, 1},
	},
	models.FaceDown: {
		Forward: Vec3{0, -1, 0},
		SAxis:   Vec3{1, 0, 0},
		TAxis:   Vec3{0, 0, -1},
	},
}

// FaceBasis returns the fixed basis for a face.
func FaceBasis(face models.Face) Basis {
	return faceBases[face]
}

// FaceCoordinateToDirection maps the center of pixel (x, y) on the given
// face to a unit direction vector. side is the face side length in pixels.
// The mapping is a pure function: pixel centers span s, t in (-1, 1), with
// the ±1 extremes landing exactly on the geometric face edges.
func FaceCoordinateToDirection(face models.Face, x, y, side int) Vec3 {
	s := (float64(x)+0.5)/float64(side)*2 - 1
	t := (float64(y)+0.5)/float64(side)*2 - 1

	b := faceBases[face]
	v := Vec3{
		X: b.Forward.X + s*b.SAxis.X + t*b.TAxis.X,
		Y: b.Forward.Y + s*b.SAxis.Y + t*b.TAxis.Y,
		Z: b.Forward.Z + s*b.SAxis.Z + t*b.TAxis.Z,
	}
	return v.Normalized()
}

// DirectionToEquirectangular maps a unit direction to normalized
// equirectangular coordinates (u, v) in [0,1]x[0,1]:
//
//	u = 0.5 + atan2(x, z) / 2π
//	v = 0.5 - asin(y) / π
//
// u wraps modulo 1 at the atan2 seam; callers sampling near u≈0 or u≈1
// must treat the two edges as adjacent. At the poles (y = ±1) u collapses
// to 0.5 via atan2(0, 0) = 0, so pole directions never need special casing.
func DirectionToEquirectangular(v Vec3) (u, w float64) {
	u = 0.5 + math.Atan2(v.X, v.Z)/(2*math.Pi)

	// Guard asin against |y| drifting past 1 from float rounding.
	y := v.Y
	if y > 1 {
		y = 1
	} else if y < -1 {
		y = -1
	}
	w = 0.5 - math.Asin(y)/math.Pi
	return u, w
}

// EquirectangularToYawPitch converts normalized equirectangular
// coordinates to viewing angles in radians: yaw in (-π, π] increasing
// eastward from the front direction, pitch in [-π/2, π/2] increasing
// upward. This is the inverse mapping viewers use to turn a panorama
// click into a camera orientation.
func EquirectangularToYawPitch(u, v float64) (yaw, pitch float64) {
	yaw = (u - 0.5) * 2 * math.Pi
	pitch = (0.5 - v) * math.Pi
	return yaw, pitch
}
