package capture

import (
	"testing"
	"time"

	"meetscribe/internal/page"
)

func TestElementCacheHonorsTTL(t *testing.T) {
	doc := page.NewMemoryDocument("https://meet.google.com/abc")
	doc.SetRegion("captions", &page.Element{NodeID: "v1", Text: "first"})

	cache := newElementCache(doc, 5*time.Second)
	clock := time.Unix(1000, 0)
	cache.now = func() time.Time { return clock }

	if el := cache.lookup("captions"); el == nil || el.NodeID != "v1" {
		t.Fatalf("unexpected initial lookup: %+v", el)
	}

	// Within the TTL the stale snapshot is served.
	doc.SetRegion("captions", &page.Element{NodeID: "v2", Text: "second"})
	clock = clock.Add(2 * time.Second)
	if el := cache.lookup("captions"); el.NodeID != "v1" {
		t.Fatalf("expected cached element, got %s", el.NodeID)
	}

	clock = clock.Add(4 * time.Second)
	if el := cache.lookup("captions"); el.NodeID != "v2" {
		t.Fatalf("expected refreshed element, got %s", el.NodeID)
	}
}

func TestElementCacheDoesNotCacheMisses(t *testing.T) {
	doc := page.NewMemoryDocument("https://meet.google.com/abc")
	cache := newElementCache(doc, 5*time.Second)

	if el := cache.lookup("chat"); el != nil {
		t.Fatalf("expected miss, got %+v", el)
	}
	doc.SetRegion("chat", &page.Element{NodeID: "c1"})
	if el := cache.lookup("chat"); el == nil {
		t.Fatal("expected late-appearing region to be found")
	}
}

func TestActionGuardDropsRapidRepeats(t *testing.T) {
	guard := newActionGuard(time.Second)
	clock := time.Unix(2000, 0)
	guard.now = func() time.Time { return clock }

	if !guard.allow("start_recording") {
		t.Fatal("first action should pass")
	}
	clock = clock.Add(300 * time.Millisecond)
	if guard.allow("start_recording") {
		t.Fatal("rapid repeat should be dropped")
	}
	if !guard.allow("stop_recording") {
		t.Fatal("different action should pass")
	}
	clock = clock.Add(time.Second)
	if !guard.allow("start_recording") {
		t.Fatal("action should pass after the interval")
	}
}

func TestDebouncerZeroWindowRunsInline(t *testing.T) {
	deb := newDebouncer(0)
	ran := false
	deb.trigger(func() { ran = true })
	if !ran {
		t.Fatal("zero-window debouncer must run inline")
	}
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	deb := newDebouncer(20 * time.Millisecond)
	results := make(chan int, 4)
	for i := 1; i <= 3; i++ {
		i := i
		deb.trigger(func() { results <- i })
	}
	select {
	case got := <-results:
		if got != 3 {
			t.Fatalf("expected only the last trigger to run, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced callback never ran")
	}
	select {
	case got := <-results:
		t.Fatalf("unexpected extra callback %d", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncerCancel(t *testing.T) {
	deb := newDebouncer(10 * time.Millisecond)
	ran := make(chan struct{}, 1)
	deb.trigger(func() { ran <- struct{}{} })
	deb.cancel()
	deb.trigger(func() { ran <- struct{}{} })
	select {
	case <-ran:
		t.Fatal("cancelled debouncer must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBufferFlushRewritesSelfSpeaker(t *testing.T) {
	var buf reconcileBuffer
	at := time.Unix(3000, 0)
	buf.seed("You", "my words", at)
	buf.update("my words so far")

	entry, ok := buf.flush("Ada Lovelace", at.Add(2*time.Second))
	if !ok {
		t.Fatal("expected flush to commit")
	}
	if entry.Speaker != "Ada Lovelace" {
		t.Fatalf("self label not rewritten: %q", entry.Speaker)
	}
	if entry.Text != "my words so far" {
		t.Fatalf("unexpected flushed text %q", entry.Text)
	}
	if entry.StartTime == nil || !entry.StartTime.Equal(at) {
		t.Fatalf("unexpected start time %v", entry.StartTime)
	}
	if !buf.empty() {
		t.Fatal("buffer must be clear after flush")
	}
	if _, ok := buf.flush("Ada Lovelace", at); ok {
		t.Fatal("flushing an empty buffer must be a no-op")
	}
}

func TestBufferKeepsIDAcrossUpdates(t *testing.T) {
	var buf reconcileBuffer
	seeded := buf.seed("Alice", "he", time.Unix(4000, 0))
	updated := buf.update("hello")
	if seeded.ID == "" || seeded.ID != updated.ID {
		t.Fatalf("id must be stable across updates: %q vs %q", seeded.ID, updated.ID)
	}
	if !updated.Timestamp.Equal(seeded.Timestamp) {
		t.Fatal("timestamp must be stable across updates")
	}
}
