package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{ModelPack: "buffalo_l", DetWidth: 640, DetHeight: 640},
		Matching: config.MatchingConfig{
			Threshold:              0.5,
			MaxEmbeddingsPerPerson: 2,
		},
		Quality: config.QualityConfig{
			MinFaceWidth:  20,
			MinSharpness:  10,
			MinBrightness: 40,
			MaxBrightness: 220,
			MinContrast:   10,
			MaxRoll:       10,
		},
		Photos: config.PhotosConfig{MaxImageSize: 64},
	}
}

// testImage returns a base64 PNG checkerboard that passes the quality gate.
func testImage(t *testing.T, size int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			v := uint8(80)
			if (x+y)%2 == 0 {
				v = 180
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// testFace builds a detection covering bbox with the given embedding.
func testFace(bbox [4]float64, emb ...float32) extractor.Face {
	return extractor.Face{
		BBox:      bbox,
		Embedding: emb,
		Landmarks: []facematch.Point{{X: bbox[0] + 10, Y: bbox[1] + 10}, {X: bbox[2] - 10, Y: bbox[1] + 10}},
		DetScore:  0.9,
	}
}

// jsonRequest creates a request with a JSON encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result.Error != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result.Error)
	}
}
