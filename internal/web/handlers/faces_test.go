package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omri0111-web/facepace-public/internal/database/mock"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	extmock "github.com/omri0111-web/facepace-public/internal/extractor/mock"
	"github.com/omri0111-web/facepace-public/internal/recognition"
)

type faceFixture struct {
	ext     *extmock.MockExtractor
	handle  *extractor.Handle
	store   *mock.MockStore
	handler *FacesHandler
}

// newFaceFixture wires a FacesHandler around a mock extractor and an in-memory store.
func newFaceFixture(ready bool, faces ...extractor.Face) *faceFixture {
	cfg := testConfig()
	ext := extmock.NewMockExtractor(faces...)
	handle := extractor.NewHandle(ext, true)
	if ready {
		handle = extmock.ReadyHandle(ext)
	}
	store := mock.NewMockStore()
	cache := recognition.NewGroupCache(store, 0)
	enroller := recognition.NewEnroller(handle, store, cfg.Quality, cfg.Matching.MaxEmbeddingsPerPerson)
	matcher := recognition.NewMatcher(handle, store, cache, cfg.Matching.Threshold, 0)
	return &faceFixture{
		ext:     ext,
		handle:  handle,
		store:   store,
		handler: NewFacesHandler(cfg, handle, enroller, matcher, store),
	}
}

func TestFacesHandler_Health(t *testing.T) {
	f := newFaceFixture(false)

	recorder := httptest.NewRecorder()
	f.handler.Health(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")
	var resp HealthResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Status != "ok" || resp.Extractor != "not_ready" {
		t.Errorf("got %+v, want status ok and extractor not_ready", resp)
	}

	f.handler.Init(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/v1/init", nil))

	recorder = httptest.NewRecorder()
	f.handler.Health(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))
	parseJSONResponse(t, recorder, &resp)
	if resp.Extractor != "ready" || resp.ModelPack != "buffalo_l" {
		t.Errorf("got %+v, want ready with buffalo_l", resp)
	}
}

func TestFacesHandler_Init(t *testing.T) {
	t.Run("request overrides config", func(t *testing.T) {
		f := newFaceFixture(false)
		recorder := httptest.NewRecorder()
		f.handler.Init(recorder, jsonRequest(t, "POST", "/api/v1/init", map[string]any{"model_pack": "antelopev2"}))

		assertStatusCode(t, recorder, http.StatusOK)
		opts := f.handle.Options()
		if opts.ModelPack != "antelopev2" || opts.DetWidth != 640 {
			t.Errorf("got options %+v, want antelopev2 with default det size", opts)
		}
	})

	t.Run("prepare failure", func(t *testing.T) {
		f := newFaceFixture(false)
		f.ext.PrepareError = errors.New("model files missing")
		recorder := httptest.NewRecorder()
		f.handler.Init(recorder, httptest.NewRequest("POST", "/api/v1/init", nil))

		assertStatusCode(t, recorder, http.StatusInternalServerError)
		if f.handle.Ready() {
			t.Error("handle should stay uninitialized after a failed init")
		}
	})
}

func TestFacesHandler_Detect(t *testing.T) {
	f := newFaceFixture(true,
		testFace([4]float64{0, 0, 20, 30}, 1, 0, 0),
		testFace([4]float64{30, 10, 60, 50}, 0, 1, 0),
	)

	recorder := httptest.NewRecorder()
	f.handler.Detect(recorder, jsonRequest(t, "POST", "/api/v1/detect", ImageRequest{Image: testImage(t, 64)}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Boxes []struct {
			X, Y          float64
			Width, Height float64
		} `json:"boxes"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(resp.Boxes))
	}
	if resp.Boxes[1].X != 30 || resp.Boxes[1].Width != 30 || resp.Boxes[1].Height != 40 {
		t.Errorf("second box = %+v, want x=30 width=30 height=40", resp.Boxes[1])
	}
}

func TestFacesHandler_BadRequests(t *testing.T) {
	f := newFaceFixture(true)

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", "{not json", errInvalidRequestBody},
		{"missing image", `{}`, errImageRequired},
		{"garbage image", `{"image":"bm90IGFuIGltYWdl"}`, errInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			f.handler.Detect(recorder, httptest.NewRequest("POST", "/api/v1/detect", strings.NewReader(tt.body)))
			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.wantErr)
		})
	}
}

func TestFacesHandler_NotReady(t *testing.T) {
	f := newFaceFixture(false, testFace([4]float64{0, 0, 48, 48}, 1, 0, 0))
	img := testImage(t, 64)

	tests := []struct {
		name string
		call func(w http.ResponseWriter, r *http.Request)
		body any
	}{
		{"detect", f.handler.Detect, ImageRequest{Image: img}},
		{"enroll", f.handler.Enroll, EnrollRequest{PersonID: "alice", Image: img}},
		{"recognize", f.handler.Recognize, RecognizeRequest{Image: img}},
		{"validate", f.handler.ValidateFace, ImageRequest{Image: img}},
		{"video frame", f.handler.ProcessVideoFrame, VideoFrameRequest{Image: img}},
		{"search", f.handler.Search, SearchRequest{Image: img}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			tt.call(recorder, jsonRequest(t, "POST", "/", tt.body))
			assertStatusCode(t, recorder, http.StatusServiceUnavailable)
			assertJSONError(t, recorder, errServiceNotReady)
		})
	}
}

func TestFacesHandler_ProcessVideoFrame(t *testing.T) {
	f := newFaceFixture(true, testFace([4]float64{5, 5, 25, 25}, 1, 0))

	recorder := httptest.NewRecorder()
	f.handler.ProcessVideoFrame(recorder, jsonRequest(t, "POST", "/api/v1/process-video-frame",
		VideoFrameRequest{Image: testImage(t, 32), Timestamp: 12.5}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Faces     []FrameFace `json:"faces"`
		Timestamp float64     `json:"timestamp"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Timestamp != 12.5 || len(resp.Faces) != 1 || resp.Faces[0].Timestamp != 12.5 {
		t.Errorf("got %+v, want one face tagged 12.5", resp)
	}
	if resp.Faces[0].Width != 20 {
		t.Errorf("width = %v, want 20", resp.Faces[0].Width)
	}
}
