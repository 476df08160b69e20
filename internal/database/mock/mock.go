// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-indexer/internal/database"
)

// MockFaceRegistry is an in-memory implementation of database.FaceRegistry.
// It also serves as the registry when no DATABASE_URL is configured.
type MockFaceRegistry struct {
	mu    sync.RWMutex
	faces map[string]database.FaceRecord

	// Call counters
	LookupCalls   int
	BatchGetCalls int

	// Error injection
	LookupError      error
	BatchGetError    error
	RegisterError    error
	UpdateCelebError error
	DeleteError      error
}

// NewMockFaceRegistry creates an empty registry
func NewMockFaceRegistry() *MockFaceRegistry {
	return &MockFaceRegistry{
		faces: make(map[string]database.FaceRecord),
	}
}

// AddFace adds a record without touching timestamps or counters
func (m *MockFaceRegistry) AddFace(rec database.FaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces[rec.FaceID] = rec
}

// Lookup retrieves a face by id
func (m *MockFaceRegistry) Lookup(ctx context.Context, faceID string) (*database.FaceRecord, error) {
	m.mu.Lock()
	m.LookupCalls++
	m.mu.Unlock()
	if m.LookupError != nil {
		return nil, m.LookupError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.faces[faceID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// BatchGet retrieves the known faces among faceIDs
func (m *MockFaceRegistry) BatchGet(ctx context.Context, faceIDs []string) (map[string]database.FaceRecord, error) {
	m.mu.Lock()
	m.BatchGetCalls++
	m.mu.Unlock()
	if m.BatchGetError != nil {
		return nil, m.BatchGetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]database.FaceRecord, len(faceIDs))
	for _, id := range faceIDs {
		if rec, ok := m.faces[id]; ok {
			result[id] = rec
		}
	}
	return result, nil
}

// RegisterFace stores a face
func (m *MockFaceRegistry) RegisterFace(ctx context.Context, rec database.FaceRecord) error {
	if m.RegisterError != nil {
		return m.RegisterError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.faces[rec.FaceID] = rec
	return nil
}

// UpdateCeleb sets the identity name of a face; unknown faces are ignored
func (m *MockFaceRegistry) UpdateCeleb(ctx context.Context, faceID, celeb string) error {
	if m.UpdateCelebError != nil {
		return m.UpdateCelebError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.faces[faceID]
	if !ok {
		return nil
	}
	rec.Celeb = celeb
	rec.UpdatedAt = time.Now()
	m.faces[faceID] = rec
	return nil
}

// DeleteFace removes a face
func (m *MockFaceRegistry) DeleteFace(ctx context.Context, faceID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.faces, faceID)
	return nil
}

// All returns every stored face sorted by id
func (m *MockFaceRegistry) All() []database.FaceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.FaceRecord, 0, len(m.faces))
	for _, rec := range m.faces {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FaceID < result[j].FaceID })
	return result
}

// Count returns the number of stored faces
func (m *MockFaceRegistry) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces)
}

// Ensure the mock implements the interface
var _ database.FaceRegistry = (*MockFaceRegistry)(nil)
