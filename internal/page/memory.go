package page

import (
	"context"
	"errors"
	"sync"
)

// MemoryDocument is an in-process Document fed by explicit region updates.
// It backs adapter tests and scripted replays; callbacks run synchronously
// on the goroutine applying the update, mirroring the single-dispatcher
// behavior of the websocket document.
type MemoryDocument struct {
	mu        sync.Mutex
	url       string
	regions   map[string]*Element
	observers map[string]map[int]ChangeFunc
	nextObs   int
	clicks    []string
	onClick   func(selector string)
	closed    bool
}

// NewMemoryDocument constructs an empty in-memory document for the URL.
func NewMemoryDocument(url string) *MemoryDocument {
	return &MemoryDocument{
		url:       url,
		regions:   make(map[string]*Element),
		observers: make(map[string]map[int]ChangeFunc),
	}
}

func (d *MemoryDocument) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *MemoryDocument) Query(selector string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regions[selector]
}

func (d *MemoryDocument) Observe(selector string, fn ChangeFunc) (CancelFunc, error) {
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

func (d *MemoryDocument) Click(_ context.Context, selector string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("document closed")
	}
	d.clicks = append(d.clicks, selector)
	handler := d.onClick
	d.mu.Unlock()
	if handler != nil {
		handler(selector)
	}
	return nil
}

func (d *MemoryDocument) SetAttr(_ context.Context, nodeID, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, root := range d.regions {
		if el := findNode(root, nodeID); el != nil {
			if el.Attrs == nil {
				el.Attrs = make(map[string]string)
			}
			el.Attrs[name] = value
			return nil
		}
	}
	return errors.New("node not found: " + nodeID)
}

func (d *MemoryDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.observers = make(map[string]map[int]ChangeFunc)
	return nil
}

// SetRegion replaces a region snapshot and notifies its observers.
func (d *MemoryDocument) SetRegion(selector string, root *Element) {
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

// RemoveRegion drops a region and notifies observers with a nil root.
func (d *MemoryDocument) RemoveRegion(selector string) {
	d.SetRegion(selector, nil)
}

// Clicks returns the selectors clicked so far, in order.
func (d *MemoryDocument) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// OnClick installs a hook invoked for every dispatched click.
func (d *MemoryDocument) OnClick(fn func(selector string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick = fn
}

func findNode(root *Element, nodeID string) *Element {
	if root == nil {
		return nil
	}
	if root.NodeID == nodeID {
		return root
	}
	for _, child := range root.Children {
		if found := findNode(child, nodeID); found != nil {
			return found
		}
	}
	return nil
}
