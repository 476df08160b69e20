package facematch

// Box is a rectangle as left/top/width/height. Depending on context the values are
// relative (0-1) or pixels; the helpers below say which they expect.
type Box struct {
	Left   float64 `json:"l"`
	Top    float64 `json:"t"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Right returns the right edge.
func (b Box) Right() float64 { return b.Left + b.Width }

// Bottom returns the bottom edge.
func (b Box) Bottom() float64 { return b.Top + b.Height }

// Area returns width*height.
func (b Box) Area() float64 { return b.Width * b.Height }

// Center returns the center point.
func (b Box) Center() (float64, float64) {
	return b.Left + b.Width/2, b.Top + b.Height/2
}

// Contains reports whether the point lies strictly inside the box.
// Points on an edge belong to no box, so neighbouring grid cells never both match.
func (b Box) Contains(x, y float64) bool {
	return x > b.Left && x < b.Right() && y > b.Top && y < b.Bottom()
}

// ToPixels converts a relative box to pixel coordinates of an image of the given size.
func (b Box) ToPixels(width, height int) Box {
	w, h := float64(width), float64(height)
	return Box{
		Left:   b.Left * w,
		Top:    b.Top * h,
		Width:  b.Width * w,
		Height: b.Height * h,
	}
}

// PixelCenter returns the absolute center of a relative box inside an image of the given size.
func (b Box) PixelCenter(width, height int) (float64, float64) {
	return b.ToPixels(width, height).Center()
}

// PadFaceBox expands a pixel face box around its center to the aspect ratio
// aspectW:aspectH, scales it by scale, and keeps it within a width x height image.
// The box is shifted back inside the image first and only cropped when it is
// larger than the image itself.
func PadFaceBox(b Box, width, height int, aspectW, aspectH, scale float64) Box {
	cx, cy := b.Center()
	w, h := b.Width, b.Height

	// Grow the short side so w:h == aspectW:aspectH.
	if w*aspectH > h*aspectW {
		h = w * aspectH / aspectW
	} else {
		w = h * aspectW / aspectH
	}
	w *= scale
	h *= scale

	left := cx - w/2
	top := cy - h/2

	imgW, imgH := float64(width), float64(height)
	left = shiftInside(left, w, imgW)
	top = shiftInside(top, h, imgH)

	right := min(left+w, imgW)
	bottom := min(top+h, imgH)
	left = max(left, 0)
	top = max(top, 0)

	return Box{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

func shiftInside(start, size, limit float64) float64 {
	if start+size > limit {
		start = limit - size
	}
	if start < 0 {
		start = 0
	}
	return start
}

// Grid describes a fixed composite layout of equally sized cells placed row-major.
type Grid struct {
	Columns    int
	Rows       int
	CellWidth  int
	CellHeight int
}

// Capacity returns the number of cells.
func (g Grid) Capacity() int {
	return g.Columns * g.Rows
}

// Size returns the composite size in pixels.
func (g Grid) Size() (int, int) {
	return g.Columns * g.CellWidth, g.Rows * g.CellHeight
}

// Cell returns the pixel rectangle of the i-th cell (row-major).
func (g Grid) Cell(i int) Box {
	col := i % g.Columns
	row := i / g.Columns
	return Box{
		Left:   float64(col * g.CellWidth),
		Top:    float64(row * g.CellHeight),
		Width:  float64(g.CellWidth),
		Height: float64(g.CellHeight),
	}
}

// FindContaining returns the index of the first box containing the point, or -1.
func FindContaining(boxes []Box, x, y float64) int {
	for i, b := range boxes {
		if b.Contains(x, y) {
			return i
		}
	}
	return -1
}
