package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/camfeed/camfeed-server/internal/http/middleware"
	"github.com/camfeed/camfeed-server/internal/repo"
	"github.com/camfeed/camfeed-server/internal/service"
)

type fakeStore struct {
	cfgs   map[int64]*stream.Config
	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{cfgs: make(map[int64]*stream.Config)}
}

func (s *fakeStore) GenerateID(context.Context) (int64, error) {
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) Upsert(_ context.Context, cfg *stream.Config) error {
	cp := *cfg
	s.cfgs[cfg.ID] = &cp
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.cfgs[id]; !ok {
		return repo.ErrStreamNotFound
	}
	delete(s.cfgs, id)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*stream.Config, error) {
	cfg, ok := s.cfgs[id]
	if !ok {
		return nil, repo.ErrStreamNotFound
	}
	return cfg, nil
}

func (s *fakeStore) GetAll(context.Context) ([]*stream.Config, error) {
	out := make([]*stream.Config, 0, len(s.cfgs))
	for _, cfg := range s.cfgs {
		out = append(out, cfg)
	}
	return out, nil
}

type fakeStatus struct {
	res         service.StatusResult
	err         error
	invalidates int
}

func (s *fakeStatus) Get(context.Context) (service.StatusResult, error) { return s.res, s.err }
func (s *fakeStatus) Invalidate()                                       { s.invalidates++ }

func streamsRouter(store StreamStore, status StatusGetter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStreamsHandler(zap.NewNop(), store, status)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/streams", h.GetStreamList)
	api.POST("/streams", h.CreateStream)
	api.GET("/streams/status", h.Status)
	api.GET("/streams/:id", middleware.RequireValidStreamID(), h.GetStream)
	api.DELETE("/streams/:id", middleware.RequireValidStreamID(), h.DeleteStream)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateStream(t *testing.T) {
	store := newFakeStore()
	status := &fakeStatus{}
	r := streamsRouter(store, status)

	w := doJSON(t, r, http.MethodPost, "/api/streams", `{"url":"rtsp://cam.local/live","fps":30}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body)
	}
	if loc := w.Header().Get("Location"); loc != "/api/streams/1" {
		t.Fatalf("Location = %q", loc)
	}

	var got stream.Config
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	// Omitted encoding fields come back with defaults.
	if got.ID != 1 || got.Quality != "5" || got.Resolution != "640x480" || got.FPS != 30 {
		t.Fatalf("created = %+v", got)
	}
	if _, ok := store.cfgs[1]; !ok {
		t.Fatal("stream not persisted")
	}
	if status.invalidates != 1 {
		t.Fatalf("status invalidates = %d, want 1", status.invalidates)
	}
}

func TestCreateStreamBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"url":`, http.StatusBadRequest},
		{"unknown field", `{"url":"rtsp://x","bogus":1}`, http.StatusBadRequest},
		{"missing url", `{"fps":10}`, http.StatusBadRequest},
		{"null quality", `{"url":"rtsp://x","quality":null}`, http.StatusBadRequest},
		{"quality out of range", `{"url":"rtsp://x","quality":"99"}`, http.StatusUnprocessableEntity},
		{"bad resolution", `{"url":"rtsp://x","resolution":"wide"}`, http.StatusUnprocessableEntity},
		{"url without scheme", `{"url":"cam.local/live"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			r := streamsRouter(store, &fakeStatus{})

			w := doJSON(t, r, http.MethodPost, "/api/streams", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.want, w.Body)
			}
			if len(store.cfgs) != 0 {
				t.Fatal("rejected stream was persisted")
			}
		})
	}
}

func TestGetStream(t *testing.T) {
	store := newFakeStore()
	store.cfgs[3] = &stream.Config{ID: 3, URL: "rtsp://cam", Quality: "5", Resolution: "640x480", FPS: 15}
	r := streamsRouter(store, &fakeStatus{})

	w := doJSON(t, r, http.MethodGet, "/api/streams/3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/streams/4", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	// Non-numeric and non-positive IDs are rejected before the handler runs.
	for _, path := range []string{"/api/streams/abc", "/api/streams/0", "/api/streams/-1"} {
		w = doJSON(t, r, http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("GET %s status = %d, want 400", path, w.Code)
		}
	}
}

func TestGetStreamList(t *testing.T) {
	store := newFakeStore()
	store.cfgs[1] = &stream.Config{ID: 1, URL: "rtsp://a", Quality: "5", Resolution: "640x480", FPS: 15}
	store.cfgs[2] = &stream.Config{ID: 2, URL: "rtsp://b", Quality: "5", Resolution: "640x480", FPS: 15}
	r := streamsRouter(store, &fakeStatus{})

	w := doJSON(t, r, http.MethodGet, "/api/streams", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if total := w.Header().Get("X-Total-Count"); total != "2" {
		t.Fatalf("X-Total-Count = %q, want 2", total)
	}
}

func TestDeleteStream(t *testing.T) {
	store := newFakeStore()
	store.cfgs[5] = &stream.Config{ID: 5, URL: "rtsp://cam", Quality: "5", Resolution: "640x480", FPS: 15}
	status := &fakeStatus{}
	r := streamsRouter(store, status)

	w := doJSON(t, r, http.MethodDelete, "/api/streams/5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"id":5}` {
		t.Fatalf("body = %s", body)
	}
	if status.invalidates != 1 {
		t.Fatalf("status invalidates = %d, want 1", status.invalidates)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/streams/5", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	genAt := time.UnixMilli(1700000000000)
	status := &fakeStatus{res: service.StatusResult{
		Data: []service.StreamStatus{
			{Config: stream.Config{ID: 1, URL: "rtsp://a"}, Viewers: 2, Live: true},
		},
		CacheHit:    true,
		GeneratedAt: genAt,
	}}
	r := streamsRouter(newFakeStore(), status)

	w := doJSON(t, r, http.MethodGet, "/api/streams/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != "HIT" {
		t.Fatalf("X-Cache = %q", got)
	}
	if got := w.Header().Get("X-Status-Generated-At"); got != "1700000000000" {
		t.Fatalf("X-Status-Generated-At = %q", got)
	}
	if got := w.Header().Get("X-Total-Count"); got != "1" {
		t.Fatalf("X-Total-Count = %q", got)
	}
	if !strings.Contains(w.Body.String(), `"viewers":2`) {
		t.Fatalf("body = %s", w.Body)
	}
}
