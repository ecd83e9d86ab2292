package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meetscribe/internal/logging"
)

const (
	frameHello   = "hello"
	frameRegion  = "region"
	frameClick   = "click"
	frameSetAttr = "set_attr"
)

// frame is the wire envelope exchanged with the browser-side page shim.
type frame struct {
	Type     string   `json:"type"`
	URL      string   `json:"url,omitempty"`
	Selector string   `json:"selector,omitempty"`
	Root     *Element `json:"root,omitempty"`
	NodeID   string   `json:"node_id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Value    string   `json:"value,omitempty"`
}

// WSDocument is a Document backed by a live browser page shim speaking the
// region-frame protocol over a websocket. All change callbacks run on the
// single read-loop goroutine, so handlers are never re-entrant.
type WSDocument struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu        sync.Mutex
	url       string
	regions   map[string]*Element
	observers map[string]map[int]ChangeFunc
	nextObs   int
	closed    bool

	writeMu sync.Mutex
	done    chan struct{}
}

// DialShim connects to a page shim and waits for its hello frame carrying
// the page URL.
func DialShim(ctx context.Context, shimURL string, logger *slog.Logger) (*WSDocument, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, shimURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial page shim: %w", err)
	}

	doc := &WSDocument{
		conn:      conn,
		logger:    logging.WithComponent(logger, "page"),
		regions:   make(map[string]*Element),
		observers: make(map[string]map[int]ChangeFunc),
		done:      make(chan struct{}),
	}

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read shim hello: %w", err)
	}
	if hello.Type != frameHello || hello.URL == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected shim greeting %q", hello.Type)
	}
	doc.url = hello.URL

	go doc.readLoop()
	return doc, nil
}

func (d *WSDocument) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *WSDocument) Query(selector string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regions[selector]
}

func (d *WSDocument) Observe(selector string, fn ChangeFunc) (CancelFunc, error) {
	if fn == nil {
		return nil, errors.New("observe requires a callback")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("document closed")
	}
	if d.observers[selector] == nil {
		d.observers[selector] = make(map[int]ChangeFunc)
	}
	id := d.nextObs
	d.nextObs++
	d.observers[selector][id] = fn

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.observers[selector], id)
		})
	}
	return cancel, nil
}

func (d *WSDocument) Click(ctx context.Context, selector string) error {
	return d.send(ctx, frame{Type: frameClick, Selector: selector})
}

func (d *WSDocument) SetAttr(ctx context.Context, nodeID, name, value string) error {
	return d.send(ctx, frame{Type: frameSetAttr, NodeID: nodeID, Name: name, Value: value})
}

// Close tears down the websocket and unblocks the read loop.
func (d *WSDocument) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.observers = make(map[string]map[int]ChangeFunc)
	d.mu.Unlock()

	err := d.conn.Close()
	<-d.done
	return err
}

// Done is closed when the shim connection ends, normally or otherwise.
func (d *WSDocument) Done() <-chan struct{} {
	return d.done
}

func (d *WSDocument) send(ctx context.Context, msg frame) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode shim frame: %w", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write shim frame: %w", err)
	}
	return nil
}

func (d *WSDocument) readLoop() {
	defer close(d.done)
	for {
		var msg frame
		if err := d.conn.ReadJSON(&msg); err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if !closed {
				d.logger.Warn("page shim connection ended", logging.Error(err))
			}
			return
		}

		switch msg.Type {
		case frameRegion:
			d.applyRegion(msg.Selector, msg.Root)
		case frameHello:
			// Late hello frames carry URL updates on soft navigation.
			d.mu.Lock()
			if msg.URL != "" {
				d.url = msg.URL
			}
			d.mu.Unlock()
		default:
			d.logger.Debug("ignoring unknown shim frame", logging.String("type", msg.Type))
		}
	}
}

func (d *WSDocument) applyRegion(selector string, root *Element) {
	d.mu.Lock()
	if root == nil {
		delete(d.regions, selector)
	} else {
		d.regions[selector] = root
	}
	fns := make([]ChangeFunc, 0, len(d.observers[selector]))
	for _, fn := range d.observers[selector] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	change := Change{Selector: selector, Root: root}
	for _, fn := range fns {
		fn(change)
	}
}
