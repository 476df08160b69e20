package facematch

import (
	"math"
	"testing"
)

func boxAlmostEqual(a, b Box) bool {
	const eps = 0.0001
	return math.Abs(a.Left-b.Left) < eps && math.Abs(a.Top-b.Top) < eps &&
		math.Abs(a.Width-b.Width) < eps && math.Abs(a.Height-b.Height) < eps
}

func TestBoxContains(t *testing.T) {
	box := Box{Left: 10, Top: 20, Width: 30, Height: 40}

	tests := []struct {
		name     string
		x, y     float64
		expected bool
	}{
		{"center", 25, 40, true},
		{"left edge", 10, 40, false},
		{"right edge", 40, 40, false},
		{"top edge", 25, 20, false},
		{"bottom edge", 25, 60, false},
		{"outside", 5, 5, false},
		{"just inside corner", 10.001, 20.001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := box.Contains(tt.x, tt.y); got != tt.expected {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.x, tt.y, got, tt.expected)
			}
		})
	}
}

func TestBoxPixelCenter(t *testing.T) {
	rel := Box{Left: 0.5, Top: 0.25, Width: 0.1, Height: 0.5}
	x, y := rel.PixelCenter(840, 480)
	if math.Abs(x-462) > 0.0001 || math.Abs(y-240) > 0.0001 {
		t.Errorf("PixelCenter() = (%v, %v), want (462, 240)", x, y)
	}
}

func TestPadFaceBox(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		width    int
		height   int
		expected Box
	}{
		{
			name:   "square face grows to 3:4 and scales",
			box:    Box{Left: 400, Top: 400, Width: 120, Height: 120},
			width:  1000,
			height: 1000,
			// 120x160 after aspect, 180x240 after scale, centered at (460, 460)
			expected: Box{Left: 370, Top: 340, Width: 180, Height: 240},
		},
		{
			name:   "tall face grows width",
			box:    Box{Left: 100, Top: 100, Width: 30, Height: 80},
			width:  1000,
			height: 1000,
			// 60x80 after aspect, 90x120 after scale, centered at (115, 140)
			expected: Box{Left: 70, Top: 80, Width: 90, Height: 120},
		},
		{
			name:   "box near edge is shifted inside",
			box:    Box{Left: 0, Top: 0, Width: 60, Height: 80},
			width:  500,
			height: 500,
			// 90x120 centered at (30, 40) would start negative, shifted to 0
			expected: Box{Left: 0, Top: 0, Width: 90, Height: 120},
		},
		{
			name:   "box larger than image is clamped",
			box:    Box{Left: 10, Top: 10, Width: 90, Height: 120},
			width:  100,
			height: 100,
			// 135x180 does not fit at all
			expected: Box{Left: 0, Top: 0, Width: 100, Height: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PadFaceBox(tt.box, tt.width, tt.height, 3, 4, 1.5)
			if !boxAlmostEqual(got, tt.expected) {
				t.Errorf("PadFaceBox() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestGridCells(t *testing.T) {
	g := Grid{Columns: 7, Rows: 3, CellWidth: 120, CellHeight: 160}

	if g.Capacity() != 21 {
		t.Fatalf("Capacity() = %d, want 21", g.Capacity())
	}
	w, h := g.Size()
	if w != 840 || h != 480 {
		t.Fatalf("Size() = %dx%d, want 840x480", w, h)
	}

	tests := []struct {
		index    int
		expected Box
	}{
		{0, Box{Left: 0, Top: 0, Width: 120, Height: 160}},
		{6, Box{Left: 720, Top: 0, Width: 120, Height: 160}},
		{7, Box{Left: 0, Top: 160, Width: 120, Height: 160}},
		{20, Box{Left: 720, Top: 320, Width: 120, Height: 160}},
	}
	for _, tt := range tests {
		if got := g.Cell(tt.index); !boxAlmostEqual(got, tt.expected) {
			t.Errorf("Cell(%d) = %+v, want %+v", tt.index, got, tt.expected)
		}
	}
}

func TestFindContaining(t *testing.T) {
	boxes := []Box{
		{Left: 0, Top: 0, Width: 100, Height: 100},
		{Left: 100, Top: 0, Width: 100, Height: 100},
		{Left: 200, Top: 0, Width: 100, Height: 100},
	}

	tests := []struct {
		name     string
		x, y     float64
		expected int
	}{
		{"first", 50, 50, 0},
		{"second", 150, 50, 1},
		{"third", 250, 99, 2},
		{"shared edge", 100, 50, -1},
		{"outside", 350, 50, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindContaining(boxes, tt.x, tt.y); got != tt.expected {
				t.Errorf("FindContaining(%v, %v) = %d, want %d", tt.x, tt.y, got, tt.expected)
			}
		})
	}
}

func TestItemState(t *testing.T) {
	face := Face{Box: Box{Width: 0.2, Height: 0.2}, Confidence: 99}

	tests := []struct {
		name     string
		item     Item
		expected ItemState
	}{
		{"pending", Item{Faces: []Face{face}}, ItemPending},
		{"indexed", Item{Faces: []Face{face}, FaceID: "f1"}, ItemIndexed},
		{"unindexed", Item{Faces: []Face{face}, ErrorMessage: "too small"}, ItemUnindexed},
		{"undetected", Item{}, ItemUndetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.State(); got != tt.expected {
				t.Errorf("State() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLargestFace(t *testing.T) {
	filter := Filter{MinConfidence: 80, MinBoxWidth: 0.05, MinBoxHeight: 0.05}
	item := Item{Faces: []Face{
		{Box: Box{Width: 0.1, Height: 0.1}, Confidence: 95},
		{Box: Box{Width: 0.4, Height: 0.4}, Confidence: 50}, // fails confidence
		{Box: Box{Width: 0.2, Height: 0.3}, Confidence: 90},
		{Box: Box{Width: 0.01, Height: 0.9}, Confidence: 99}, // fails width
	}}

	face, ok := item.LargestFace(filter)
	if !ok {
		t.Fatal("expected a face to pass the filter")
	}
	if face.Box.Width != 0.2 || face.Box.Height != 0.3 {
		t.Errorf("LargestFace() = %+v, want the 0.2x0.3 face", face.Box)
	}

	none := Item{Faces: []Face{{Box: Box{Width: 0.01, Height: 0.01}, Confidence: 99}}}
	if _, ok := none.LargestFace(filter); ok {
		t.Error("expected no face to pass the filter")
	}
}

func TestCheckpointProgress(t *testing.T) {
	face := Face{Box: Box{Width: 0.2, Height: 0.2}}
	cp := Checkpoint{Items: []Item{
		{Faces: []Face{face}, FaceID: "a"},
		{},
		{Faces: []Face{face}},
		{Faces: []Face{face}},
	}}
	if got := cp.Progress(); got != 50 {
		t.Errorf("Progress() = %d, want 50", got)
	}
	empty := Checkpoint{}
	if got := empty.Progress(); got != 100 {
		t.Errorf("Progress() of empty checkpoint = %d, want 100", got)
	}
}
