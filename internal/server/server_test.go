package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ppiankov/birthplace/internal/model"
	"github.com/ppiankov/birthplace/internal/pipeline"
	"github.com/ppiankov/birthplace/internal/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCorrector struct {
	requested []string
	err       error
}

func (s *stubCorrector) CorrectURL(_ context.Context, rawURL string) (*pipeline.Result, error) {
	s.requested = append(s.requested, rawURL)
	if s.err != nil {
		return nil, s.err
	}
	return &pipeline.Result{
		Report: &model.Report{Status: "completed", Replacements: 2},
		HTML:   "<html><body>Riga, Latvia</body></html>",
	}, nil
}

func newTestServer(t *testing.T, corrector PageCorrector) (*Server, *state.Host) {
	t.Helper()
	host := state.NewHost(state.NewMemoryStore(), nil)
	srv, err := New(corrector, host, Options{Upstream: "https://en.wikipedia.org/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, host
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RejectsBadUpstream(t *testing.T) {
	if _, err := New(&stubCorrector{}, state.NewHost(nil, nil), Options{Upstream: "not a url"}); err == nil {
		t.Error("Expected error for upstream without scheme")
	}
}

func TestArticle(t *testing.T) {
	stub := &stubCorrector{}
	srv, _ := newTestServer(t, stub)

	w := do(t, srv.Handler(), http.MethodGet, "/wiki/Mark_Rothko?oldid=1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if len(stub.requested) != 1 || stub.requested[0] != "https://en.wikipedia.org/wiki/Mark_Rothko?oldid=1" {
		t.Errorf("Unexpected upstream request %v", stub.requested)
	}
	if got := w.Header().Get("X-Birthplace-Replacements"); got != "2" {
		t.Errorf("Expected replacements header 2, got %q", got)
	}
	if !strings.Contains(w.Body.String(), "Riga, Latvia") {
		t.Errorf("Expected corrected body, got %s", w.Body.String())
	}
}

func TestArticle_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"robots", pipeline.ErrDisallowed, http.StatusForbidden},
		{"upstream", errors.New("fetch: unexpected status: 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, &stubCorrector{err: tt.err})
			if w := do(t, srv.Handler(), http.MethodGet, "/wiki/Riga", ""); w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestStateAPI(t *testing.T) {
	srv, host := newTestServer(t, &stubCorrector{})
	h := srv.Handler()

	if err := host.AddReplacements(context.Background(), 1500); err != nil {
		t.Fatal(err)
	}

	var snap state.Snapshot
	w := do(t, h, http.MethodGet, "/api/state", "")
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !snap.Enabled || snap.Tally != 1500 || snap.Badge != "1.5k" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	w = do(t, h, http.MethodPost, "/api/state", `{"enabled": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if enabled, _ := host.Enabled(context.Background()); enabled {
		t.Error("Expected host disabled")
	}

	if w := do(t, h, http.MethodPost, "/api/state", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing flag, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/tally/reset", "")
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Tally != 0 || snap.Badge != "" {
		t.Errorf("Expected reset tally, got %+v", snap)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubCorrector{})
	w := do(t, srv.Handler(), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestStream_BroadcastsEvents(t *testing.T) {
	srv, host := newTestServer(t, &stubCorrector{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = ws.Close() }()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev state.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if ev.Type != state.EventState || !ev.Enabled {
		t.Errorf("Unexpected welcome %+v", ev)
	}

	// the client is registered before the welcome is written
	if err := host.AddReplacements(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != state.EventTally || ev.Tally != 3 || ev.Badge != "3" {
		t.Errorf("Unexpected tally event %+v", ev)
	}
}

func TestSameHostOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://127.0.0.1:8089", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:8089/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := sameHostOrigin(req); got != tt.want {
			t.Errorf("sameHostOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
