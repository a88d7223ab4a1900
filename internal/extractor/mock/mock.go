// Package mock provides a scripted face extractor for testing.
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/omri0111-web/facepace-public/internal/extractor"
)

// MockExtractor returns preset faces. It implements extractor.Backend.
type MockExtractor struct {
	mu    sync.Mutex
	faces []extractor.Face
	calls int

	// Error injection
	PrepareError error
	DetectError  error

	// OnDetect runs on every DetectAndEmbed call before returning.
	OnDetect func(call int)
}

// NewMockExtractor creates an extractor that always returns faces.
func NewMockExtractor(faces ...extractor.Face) *MockExtractor {
	return &MockExtractor{faces: faces}
}

// SetFaces replaces the faces returned by later calls.
func (m *MockExtractor) SetFaces(faces ...extractor.Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// Prepare implements extractor.Backend.
func (m *MockExtractor) Prepare(ctx context.Context, opts extractor.InitOptions) error {
	return m.PrepareError
}

// DetectAndEmbed returns a copy of the configured faces.
func (m *MockExtractor) DetectAndEmbed(ctx context.Context, img image.Image) ([]extractor.Face, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	faces := make([]extractor.Face, len(m.faces))
	copy(faces, m.faces)
	m.mu.Unlock()

	if m.OnDetect != nil {
		m.OnDetect(call)
	}
	if m.DetectError != nil {
		return nil, m.DetectError
	}
	return faces, nil
}

// Calls returns how many times DetectAndEmbed ran.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ReadyHandle wraps the mock in an initialized handle.
func ReadyHandle(m *MockExtractor) *extractor.Handle {
	h := extractor.NewHandle(m, true)
	if err := h.Init(context.Background(), extractor.InitOptions{ModelPack: "mock"}); err != nil {
		panic("mock extractor failed to initialize: " + err.Error())
	}
	return h
}
