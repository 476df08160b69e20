// Package mock provides an in-memory recognition service for testing.
package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/recognition"
)

// Call records one IndexFaces request.
type Call struct {
	CollectionID    string
	ExternalImageID string
	MaxFaces        int
	ImageBytes      int
}

// MockRecognizer answers IndexFaces by reporting one face in the middle of
// each of the first MaxFaces-1 cells of the composite grid.
type MockRecognizer struct {
	mu     sync.Mutex
	grid   facematch.Grid
	faces  []recognition.Face
	nextID int
	calls  []Call

	// Reject returns unindexed reasons for a cell, nil keeps the face indexed
	Reject func(call, slot int) []string
	// Extra appends additional face records to a response
	Extra func(call, cells int) []recognition.FaceRecord
	// OnCall runs at the start of every IndexFaces call
	OnCall func(call int)

	// Error injection
	IndexError error
	ListError  error

	// Detail attached to every indexed face
	Detail recognition.FaceDetail
}

// NewMockRecognizer creates a mock for composites laid out on grid.
func NewMockRecognizer(grid facematch.Grid) *MockRecognizer {
	return &MockRecognizer{
		grid: grid,
		Detail: recognition.FaceDetail{
			Confidence: 99.5,
			Gender:     &recognition.Gender{Value: "Female", Confidence: 96},
			AgeRange:   &recognition.AgeRange{Low: 25, High: 35},
		},
	}
}

// CellFace returns a face box centered in cell slot, relative to the composite.
func (m *MockRecognizer) CellFace(slot int) recognition.BoundingBox {
	cell := m.grid.Cell(slot)
	w, h := m.grid.Size()
	return recognition.BoundingBox{
		Left:   (cell.Left + cell.Width/4) / float64(w),
		Top:    (cell.Top + cell.Height/4) / float64(h),
		Width:  cell.Width / 2 / float64(w),
		Height: cell.Height / 2 / float64(h),
	}
}

// IndexFaces simulates indexing a composite.
func (m *MockRecognizer) IndexFaces(ctx context.Context, collectionID, externalImageID string, image []byte, maxFaces int) (*recognition.IndexFacesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.calls)
	m.calls = append(m.calls, Call{
		CollectionID:    collectionID,
		ExternalImageID: externalImageID,
		MaxFaces:        maxFaces,
		ImageBytes:      len(image),
	})
	if m.OnCall != nil {
		m.OnCall(call)
	}
	if m.IndexError != nil {
		return nil, m.IndexError
	}

	out := &recognition.IndexFacesOutput{
		FaceRecords:    []recognition.FaceRecord{},
		UnindexedFaces: []recognition.UnindexedFace{},
	}
	cells := maxFaces - 1
	for slot := 0; slot < cells; slot++ {
		box := m.CellFace(slot)
		if m.Reject != nil {
			if reasons := m.Reject(call, slot); reasons != nil {
				detail := m.Detail
				detail.BoundingBox = box
				out.UnindexedFaces = append(out.UnindexedFaces, recognition.UnindexedFace{Reasons: reasons, FaceDetail: detail})
				continue
			}
		}
		m.nextID++
		face := recognition.Face{
			FaceID:          fmt.Sprintf("face-%04d", m.nextID),
			BoundingBox:     box,
			ExternalImageID: externalImageID,
			Confidence:      99.9,
		}
		detail := m.Detail
		detail.BoundingBox = box
		m.faces = append(m.faces, face)
		out.FaceRecords = append(out.FaceRecords, recognition.FaceRecord{Face: face, FaceDetail: detail})
	}
	if m.Extra != nil {
		out.FaceRecords = append(out.FaceRecords, m.Extra(call, cells)...)
	}
	return out, nil
}

// ListFaces pages through every face indexed so far. Tokens are offsets.
func (m *MockRecognizer) ListFaces(ctx context.Context, collectionID, token string, maxResults int) (*recognition.ListFacesOutput, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid token %q", token)
		}
		offset = n
	}
	if maxResults <= 0 {
		maxResults = len(m.faces)
	}
	end := min(offset+maxResults, len(m.faces))
	out := &recognition.ListFacesOutput{Faces: append([]recognition.Face(nil), m.faces[min(offset, end):end]...)}
	if end < len(m.faces) {
		out.NextToken = strconv.Itoa(end)
	}
	return out, nil
}

// Calls returns the recorded IndexFaces calls.
func (m *MockRecognizer) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// AddFace seeds the collection for ListFaces.
func (m *MockRecognizer) AddFace(face recognition.Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = append(m.faces, face)
}
