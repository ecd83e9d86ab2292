package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"meetscribe/internal/logging"
	"meetscribe/internal/session"
	"meetscribe/internal/store"
)

type stubDaemon struct {
	status  StatusPayload
	entries []store.HistoryEntry
	records map[int64]*session.Record
}

func (s *stubDaemon) StatusPayload(context.Context) StatusPayload { return s.status }

func (s *stubDaemon) History(_ context.Context, limit int) ([]store.HistoryEntry, error) {
	if limit > 0 && limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func (s *stubDaemon) HistoryRecord(_ context.Context, id int64) (*session.Record, error) {
	return s.records[id], nil
}

func newTestMux(t *testing.T, d Daemon, hub *StateHub) *httptest.Server {
	t.Helper()
	srv := &Server{
		bind:   "127.0.0.1:0",
		logger: logging.NewNop(),
		daemon: d,
		hub:    hub,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/sessions/history", srv.handleHistory)
	mux.HandleFunc("/api/sessions/history/", srv.handleHistoryRecord)
	if hub != nil {
		mux.Handle("/ws/state", hub)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestStatusAndHistoryEndpoints(t *testing.T) {
	rec := session.NewRecord()
	rec.ID = "saved-1"
	d := &stubDaemon{
		status: StatusPayload{
			Running:        true,
			ActiveSessions: 1,
			Sessions: map[string]session.State{
				"tab-1": {State: session.StateRecording, IsExtensionEnabled: true},
			},
		},
		entries: []store.HistoryEntry{
			{ID: 2, RecordID: "saved-2", Title: "Retro"},
			{ID: 1, RecordID: "saved-1", Title: "Standup"},
		},
		records: map[int64]*session.Record{1: rec},
	}
	ts := newTestMux(t, d, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var status StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Sessions["tab-1"].State != session.StateRecording {
		t.Fatalf("unexpected status payload: %+v", status)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/history?limit=1")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	var history struct {
		Entries []store.HistoryEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Entries) != 1 || history.Entries[0].Title != "Retro" {
		t.Fatalf("unexpected history: %+v", history.Entries)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/history/1")
	if err != nil {
		t.Fatalf("GET history record: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Record *session.Record `json:"record"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if payload.Record == nil || payload.Record.ID != "saved-1" {
		t.Fatalf("unexpected record payload: %+v", payload.Record)
	}

	resp, err = http.Get(ts.URL + "/api/sessions/history/99")
	if err != nil {
		t.Fatalf("GET missing record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing record status = %d, want 404", resp.StatusCode)
	}
}

func TestStateFeedDeliversSnapshotAndUpdates(t *testing.T) {
	hub := NewStateHub(logging.NewNop())
	hub.StateChanged("tab-1", session.State{State: session.StateRecording, IsExtensionEnabled: true})

	ts := newTestMux(t, &stubDaemon{}, hub)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot StateFrame
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot frame: %v", err)
	}
	if snapshot.SessionKey != "tab-1" || snapshot.State.State != session.StateRecording {
		t.Fatalf("unexpected snapshot frame: %+v", snapshot)
	}

	hub.StateChanged("tab-1", session.State{State: session.StatePaused, IsExtensionEnabled: true})

	var update StateFrame
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update frame: %v", err)
	}
	if update.State.State != session.StatePaused {
		t.Fatalf("unexpected update frame: %+v", update)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	handler := authMiddleware("secret", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with wrong token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}
}
