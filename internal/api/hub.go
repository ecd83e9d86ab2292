package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"meetscribe/internal/logging"
	"meetscribe/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StateFrame is one WebSocket message on the state feed.
type StateFrame struct {
	SessionKey string        `json:"session_key"`
	State      session.State `json:"state"`
}

// StateHub fans session state changes out to WebSocket subscribers. It
// implements the recorder's observer interface; slow subscribers drop
// frames rather than block the broadcast path.
type StateHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest map[string]session.State
}

type subscriber struct {
	frames chan StateFrame
}

// NewStateHub creates the hub.
func NewStateHub(logger *slog.Logger) *StateHub {
	return &StateHub{
		logger: logging.WithComponent(logger, "state-hub"),
		subs:   make(map[*subscriber]struct{}),
		latest: make(map[string]session.State),
	}
}

// StateChanged broadcasts one state change to every subscriber.
func (h *StateHub) StateChanged(sessionKey string, state session.State) {
	frame := StateFrame{SessionKey: sessionKey, State: state}

	h.mu.Lock()
	h.latest[sessionKey] = state
	for sub := range h.subs {
		select {
		case sub.frames <- frame:
		default:
		}
	}
	h.mu.Unlock()
}

// subscribe registers a subscriber and returns the snapshot of known
// session states at subscription time.
func (h *StateHub) subscribe() (*subscriber, []StateFrame) {
	sub := &subscriber{frames: make(chan StateFrame, 64)}
	h.mu.Lock()
	snapshot := make([]StateFrame, 0, len(h.latest))
	for key, state := range h.latest {
		snapshot = append(snapshot, StateFrame{SessionKey: key, State: state})
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, snapshot
}

func (h *StateHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams state frames until the
// client disconnects.
func (h *StateHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	sub, snapshot := h.subscribe()
	defer h.unsubscribe(sub)

	for _, frame := range snapshot {
		if err := writeFrame(conn, frame); err != nil {
			return
		}
	}

	// Reads are discarded; their failure signals disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case frame := <-sub.frames:
			if err := writeFrame(conn, frame); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame StateFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
