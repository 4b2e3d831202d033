package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/medbot/internal/consultation"
	"github.com/MikeSquared-Agency/medbot/internal/llm"
	"github.com/MikeSquared-Agency/medbot/internal/memory"
	"github.com/MikeSquared-Agency/medbot/internal/observability"
	"github.com/MikeSquared-Agency/medbot/internal/prompt"
	"github.com/MikeSquared-Agency/medbot/internal/session"
)

func newTestServer(t *testing.T, token string) (*Server, *session.Manager) {
	t.Helper()
	gen := llm.GeneratorFunc(func(context.Context, string, int, float64) (string, error) {
		return "Can you tell me more?", nil
	})
	mgr := session.NewManager(time.Minute, func(id string) *consultation.Session {
		return consultation.New(id, gen)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(8760, token, mgr, observability.NewMetrics("test"), logger), mgr
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := do(t, srv, "GET", "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := do(t, srv, "GET", "/metrics", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_active_sessions") {
		t.Error("expected active_sessions gauge in metrics output")
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := do(t, srv, "GET", "/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreateSession(t *testing.T) {
	srv, mgr := newTestServer(t, "")

	w := do(t, srv, "POST", "/api/v1/sessions", "")

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	body := decode[createSessionResponse](t, w)
	if body.SessionID == "" {
		t.Fatal("expected session id")
	}
	if len(body.History) != 1 || body.History[0].Doctor != prompt.Welcome {
		t.Errorf("expected welcome history, got %+v", body.History)
	}
	if mgr.ActiveCount() != 1 {
		t.Errorf("expected 1 active session, got %d", mgr.ActiveCount())
	}
}

func TestTurnFlow(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	id := mgr.Create().ID()

	w := do(t, srv, "POST", "/api/v1/sessions/"+id+"/turns", `{"text":"I have had a cough for 3 days"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	turn := decode[turnResponse](t, w)
	if turn.Input != "" || turn.TurnCount != 1 || turn.Phase != consultation.PhaseGathering {
		t.Errorf("unexpected turn response %+v", turn)
	}
	if len(turn.History) != 2 || turn.History[1].Doctor != "Can you tell me more?" {
		t.Errorf("unexpected history %+v", turn.History)
	}

	w = do(t, srv, "GET", "/api/v1/sessions/"+id, "")
	state := decode[sessionResponse](t, w)
	if state.TurnCount != 1 || len(state.History) != 2 {
		t.Errorf("unexpected session state %+v", state)
	}

	w = do(t, srv, "GET", "/api/v1/sessions/"+id+"/summary", "")
	sum := decode[memory.PatientSummary](t, w)
	if sum.ConversationTurns != 1 || len(sum.KeySymptoms) != 1 || len(sum.TimelineInfo) != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestTurn_BlankTextSkipped(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	id := mgr.Create().ID()

	w := do(t, srv, "POST", "/api/v1/sessions/"+id+"/turns", `{"text":"   "}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	turn := decode[turnResponse](t, w)
	if !turn.Skipped || turn.TurnCount != 0 || len(turn.History) != 1 {
		t.Errorf("expected skipped turn with unchanged history, got %+v", turn)
	}
}

func TestTurn_InvalidJSON(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	id := mgr.Create().ID()

	w := do(t, srv, "POST", "/api/v1/sessions/"+id+"/turns", `{"text":`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestResetSession(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	sess := mgr.Create()
	sess.HandleTurn(context.Background(), "fever")
	sess.HandleTurn(context.Background(), "since yesterday")

	w := do(t, srv, "POST", "/api/v1/sessions/"+sess.ID()+"/reset", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[resetResponse](t, w)
	if len(body.History) != 1 || body.Input != "" {
		t.Errorf("unexpected reset response %+v", body)
	}
	if sess.TurnCount() != 0 {
		t.Errorf("expected turn count reset, got %d", sess.TurnCount())
	}
}

func TestEndSession(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	id := mgr.Create().ID()

	if w := do(t, srv, "DELETE", "/api/v1/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/v1/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after end, got %d", w.Code)
	}
	if w := do(t, srv, "DELETE", "/api/v1/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, "")

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/sessions/missing"},
		{"POST", "/api/v1/sessions/missing/turns"},
		{"POST", "/api/v1/sessions/missing/reset"},
		{"GET", "/api/v1/sessions/missing/summary"},
	} {
		if w := do(t, srv, tc.method, tc.path, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	if w := do(t, srv, "POST", "/api/v1/sessions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201 with token, got %d", w.Code)
	}

	if w := do(t, srv, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must stay open, got %d", w.Code)
	}
}

func TestSessionWebsocket(t *testing.T) {
	srv, mgr := newTestServer(t, "")
	sess := mgr.Create()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + sess.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial historyFrame
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if initial.Type != frameHistory || len(initial.History) != 1 {
		t.Fatalf("unexpected initial frame %+v", initial)
	}

	conn.WriteJSON(clientFrame{Type: frameTurn, Text: "my back hurts"})
	var afterTurn historyFrame
	if err := conn.ReadJSON(&afterTurn); err != nil {
		t.Fatalf("read turn frame: %v", err)
	}
	if afterTurn.TurnCount != 1 || len(afterTurn.History) != 2 {
		t.Errorf("unexpected turn frame %+v", afterTurn)
	}

	conn.WriteJSON(clientFrame{Type: "dance"})
	var errFrame errorFrame
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Type != frameError || errFrame.Code != "unknown_frame_type" {
		t.Errorf("unexpected error frame %+v", errFrame)
	}

	conn.WriteJSON(clientFrame{Type: frameReset})
	var afterReset historyFrame
	if err := conn.ReadJSON(&afterReset); err != nil {
		t.Fatalf("read reset frame: %v", err)
	}
	if afterReset.TurnCount != 0 || len(afterReset.History) != 1 {
		t.Errorf("unexpected reset frame %+v", afterReset)
	}
}
