package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database/mock"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	extmock "github.com/omri0111-web/facepace-public/internal/extractor/mock"
)

func newTestServer(t *testing.T, token string) (*Server, *mock.MockStore) {
	t.Helper()
	cfg := config.Load()
	cfg.Web.APIToken = token
	cfg.Photos.Dir = t.TempDir()

	store := mock.NewMockStore()
	handle := extractor.NewHandle(extmock.NewMockExtractor(), true)
	return NewServer(cfg, NewServices(cfg, handle, store)), store
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_HealthSkipsAuth(t *testing.T) {
	s, _ := newTestServer(t, "s3cret")

	recorder := serve(s, httptest.NewRequest("GET", "/api/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["extractor"] != "not_ready" {
		t.Errorf("extractor = %q, want not_ready", body["extractor"])
	}
}

func TestServer_TokenRequired(t *testing.T) {
	s, store := newTestServer(t, "s3cret")
	store.UpsertPerson(context.Background(), "alice", "Alice")

	if got := serve(s, httptest.NewRequest("GET", "/api/v1/people", nil)).Code; got != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", got)
	}

	req := httptest.NewRequest("GET", "/api/v1/people/alice", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	recorder := serve(s, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("with token: status = %d, want 200\nBody: %s", recorder.Code, recorder.Body.String())
	}
}

func TestServer_Routes(t *testing.T) {
	s, _ := newTestServer(t, "")

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"POST", "/api/v1/groups", `{"group_id":"trip","group_name":"Trip"}`, http.StatusCreated},
		{"GET", "/api/v1/groups", ``, http.StatusOK},
		{"PUT", "/api/v1/groups/trip", `{"guide_id":""}`, http.StatusOK},
		{"POST", "/api/v1/people", `{"person_id":"bob","person_name":"Bob"}`, http.StatusOK},
		{"POST", "/api/v1/groups/trip/members", `{"person_id":"bob"}`, http.StatusOK},
		{"DELETE", "/api/v1/groups/trip/members/bob", ``, http.StatusOK},
		{"GET", "/api/v1/people/search?q=bo", ``, http.StatusOK},
		{"GET", "/api/v1/stats", ``, http.StatusOK},
		{"POST", "/api/v1/detect", `{"image":""}`, http.StatusBadRequest},
		{"DELETE", "/api/v1/people/bob", ``, http.StatusOK},
		{"POST", "/api/v1/clear", ``, http.StatusOK},
		{"GET", "/api/v1/unknown", ``, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			recorder := serve(s, httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body)))
			if recorder.Code != tt.want {
				t.Errorf("status = %d, want %d\nBody: %s", recorder.Code, tt.want, recorder.Body.String())
			}
		})
	}
}
