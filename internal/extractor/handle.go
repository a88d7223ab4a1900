// Package extractor wraps the external face detection and embedding model.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// ErrServiceNotReady is returned when inference is requested before Init succeeded.
var ErrServiceNotReady = errors.New("face service not initialized")

// Face is one detection: bbox as [x1, y1, x2, y2] in source pixels, the raw
// embedding and optional 5-point landmarks (left eye, right eye, nose, mouth corners).
type Face struct {
	BBox      [4]float64
	Embedding []float32
	Landmarks []facematch.Point
	DetScore  float64
}

// FaceExtractor detects faces and returns one embedding per face.
type FaceExtractor interface {
	DetectAndEmbed(ctx context.Context, img image.Image) ([]Face, error)
}

// Backend is a model implementation that needs a one-time preparation step.
type Backend interface {
	FaceExtractor
	Prepare(ctx context.Context, opts InitOptions) error
}

// InitOptions selects the model pack and detector input size.
type InitOptions struct {
	ModelPack string `json:"model_pack"`
	DetWidth  int    `json:"det_width"`
	DetHeight int    `json:"det_height"`
}

// Handle owns the model lifecycle. It is initialized at most once; a failed
// Init may be retried. When serialize is set, inference calls run one at a time.
type Handle struct {
	backend   Backend
	serialize bool

	initMu sync.Mutex
	mu     sync.RWMutex
	ready  bool
	opts   InitOptions

	inferMu sync.Mutex
}

// NewHandle creates an uninitialized handle around backend.
func NewHandle(backend Backend, serialize bool) *Handle {
	return &Handle{backend: backend, serialize: serialize}
}

// Init prepares the backend. Calls after a successful Init are no-ops.
func (h *Handle) Init(ctx context.Context, opts InitOptions) error {
	h.initMu.Lock()
	defer h.initMu.Unlock()

	if h.Ready() {
		return nil
	}
	if err := h.backend.Prepare(ctx, opts); err != nil {
		return fmt.Errorf("initializing face model %s: %w", opts.ModelPack, err)
	}

	h.mu.Lock()
	h.ready = true
	h.opts = opts
	h.mu.Unlock()
	return nil
}

// Ready reports whether Init has succeeded.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Options returns the options Init succeeded with.
func (h *Handle) Options() InitOptions {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opts
}

// DetectAndEmbed runs inference through the backend.
func (h *Handle) DetectAndEmbed(ctx context.Context, img image.Image) ([]Face, error) {
	if !h.Ready() {
		return nil, ErrServiceNotReady
	}
	if h.serialize {
		h.inferMu.Lock()
		defer h.inferMu.Unlock()
	}
	faces, err := h.backend.DetectAndEmbed(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face inference: %w", err)
	}
	return faces, nil
}
