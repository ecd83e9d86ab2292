package page

import "context"

// Element is a snapshot of one node in an observed page region. NodeID is
// assigned by the document source and stays stable for the lifetime of the
// underlying DOM node, which is what lets adapters tag and re-identify
// entries across change notifications.
type Element struct {
	NodeID   string            `json:"node_id"`
	Text     string            `json:"text"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Element        `json:"children,omitempty"`
}

// Attr returns the named attribute when present.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil || e.Attrs == nil {
		return "", false
	}
	value, ok := e.Attrs[name]
	return value, ok
}

// Exists reports whether the element is present.
func (e *Element) Exists() bool {
	return e != nil
}

// LastChild returns the final child element, or nil.
func (e *Element) LastChild() *Element {
	if e == nil || len(e.Children) == 0 {
		return nil
	}
	return e.Children[len(e.Children)-1]
}

// Change describes one notification for an observed region. Root is nil
// when the region disappeared from the page.
type Change struct {
	Selector string   `json:"selector"`
	Root     *Element `json:"root"`
}

// ChangeFunc receives region change notifications. Callbacks for one
// Document are never invoked concurrently.
type ChangeFunc func(Change)

// CancelFunc detaches a change subscription. Safe to call more than once.
type CancelFunc func()

// Document is a live view of the observed meeting page.
type Document interface {
	// URL returns the page URL the document was opened on.
	URL() string
	// Query returns the current snapshot of a region, or nil when absent.
	Query(selector string) *Element
	// Observe subscribes to change notifications for a region.
	Observe(selector string, fn ChangeFunc) (CancelFunc, error)
	// Click dispatches a click to the region's element on the host page.
	Click(ctx context.Context, selector string) error
	// SetAttr writes an attribute back onto a node of the host page.
	SetAttr(ctx context.Context, nodeID, name, value string) error
	// Close tears down the document and all subscriptions.
	Close() error
}
