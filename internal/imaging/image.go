// Package imaging crops, scales and composes face images for the composite indexer.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/facematch"
)

// Decode decodes JPEG, PNG, BMP or WebP data.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image with the shared quality setting.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: constants.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// CropResize cuts the pixel rectangle rect out of img and scales it to width x height.
func CropResize(img image.Image, rect facematch.Box, width, height int) *image.RGBA {
	origin := img.Bounds().Min
	src := image.Rect(
		origin.X+int(rect.Left),
		origin.Y+int(rect.Top),
		origin.X+int(rect.Right()),
		origin.Y+int(rect.Bottom()),
	).Intersect(img.Bounds())

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if src.Empty() {
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// Downscale resizes an image to fit within maxSize (width or height) while keeping aspect ratio.
// Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

// Canvas is a composite image built cell by cell.
type Canvas struct {
	grid facematch.Grid
	img  *image.RGBA
}

// NewCanvas allocates a black composite of the grid's size.
func NewCanvas(grid facematch.Grid) *Canvas {
	w, h := grid.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return &Canvas{grid: grid, img: img}
}

// Place draws a cell-sized image into cell i and returns the cell rectangle.
func (c *Canvas) Place(i int, cell image.Image) facematch.Box {
	rect := c.grid.Cell(i)
	dst := image.Rect(int(rect.Left), int(rect.Top), int(rect.Right()), int(rect.Bottom()))
	draw.Draw(c.img, dst, cell, cell.Bounds().Min, draw.Src)
	return rect
}

// Image returns the composite.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Size returns the composite size in pixels.
func (c *Canvas) Size() (int, int) {
	return c.grid.Size()
}
