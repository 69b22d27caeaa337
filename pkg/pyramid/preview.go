package pyramid

import (
	"image"
	"image/color"
	"image/draw"

	"panotiler/internal/models"
)

// previewLayout places each face in the 4x3 cross the viewer shows while
// tiles stream in. Positions are (column, row) cells of faceSize each:
//
//	        [u]
//	[l] [f] [r] [b]
//	        [d]
var previewLayout = map[models.Face][2]int{
	models.FaceUp:    {1, 0},
	models.FaceLeft:  {0, 1},
	models.FaceFront: {1, 1},
	models.FaceRight: {2, 1},
	models.FaceBack:  {3, 1},
	models.FaceDown:  {1, 2},
}

// ComposePreview assembles the six preview-sized faces into one cross
// image of 4x3 face cells. Unused cells stay opaque black. All faces
// must share the same square size.
func ComposePreview(faces [6]*image.RGBA) *image.RGBA {
	faceSize := faces[0].Bounds().Dx()
	canvas := image.NewRGBA(image.Rect(0, 0, faceSize*4, faceSize*3))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for _, face := range models.Faces() {
		cell := previewLayout[face]
		dst := image.Rect(cell[0]*faceSize, cell[1]*faceSize,
			(cell[0]+1)*faceSize, (cell[1]+1)*faceSize)
		draw.Draw(canvas, dst, faces[face], faces[face].Bounds().Min, draw.Src)
	}
	return canvas
}
