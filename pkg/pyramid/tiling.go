package pyramid

import (
	"image"
	"image/color"
	"image/draw"
)

// TileRaster is one cut tile plus its grid position within the face.
type TileRaster struct {
	Row int
	Col int
	Img *image.RGBA
}

// SplitIntoTiles partitions a square raster into a grid of
// ceil(side/tileSize)² tiles of exactly tileSize×tileSize each. The grid
// fully covers the raster with no gaps or overlap. When side is not an
// exact multiple of tileSize, edge tiles are padded with opaque black
// (never cropped), matching what viewers expect: every tile file has
// the full tile dimensions.
func SplitIntoTiles(raster *image.RGBA, tileSize int) []TileRaster {
	side := raster.Bounds().Dx()
	grid := side / tileSize
	if side%tileSize != 0 {
		grid++
	}
	if grid < 1 {
		grid = 1
	}

	tiles := make([]TileRaster, 0, grid*grid)
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			x0 := col * tileSize
			y0 := row * tileSize

			tile := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
			draw.Draw(tile, tile.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

			srcRect := image.Rect(x0, y0, min(x0+tileSize, side), min(y0+tileSize, side))
			draw.Draw(tile, image.Rect(0, 0, srcRect.Dx(), srcRect.Dy()),
				raster, srcRect.Min, draw.Src)

			tiles = append(tiles, TileRaster{Row: row, Col: col, Img: tile})
		}
	}
	return tiles
}
