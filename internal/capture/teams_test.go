package capture_test

import (
	"context"
	"testing"

	"meetscribe/internal/capture"
	"meetscribe/internal/page"
	"meetscribe/internal/session"
)

func newTeamsDoc() *page.MemoryDocument {
	doc := page.NewMemoryDocument("https://teams.microsoft.com/l/meetup-join/xyz")
	doc.SetRegion("leave-button", &page.Element{NodeID: "leave"})
	doc.SetRegion("captions", &page.Element{NodeID: "cap-root"})
	doc.SetRegion("self-name", &page.Element{NodeID: "self", Text: "Grace Hopper"})
	return doc
}

func startedTeamsAdapter(t *testing.T, doc *page.MemoryDocument) capture.Adapter {
	t.Helper()
	adapter, err := capture.New(session.PlatformTeams, doc, testCaptureConfig(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(adapter.Cleanup)
	if err := adapter.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := adapter.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	return adapter
}

func teamsCaptionList(entries ...*page.Element) *page.Element {
	return &page.Element{NodeID: "cap-root", Children: entries}
}

func TestTeamsTagsNodesOnFirstSight(t *testing.T) {
	doc := newTeamsDoc()
	adapter := startedTeamsAdapter(t, doc)

	var added []session.CaptionEntry
	adapter.On(capture.EventCaptionAdded, func(event capture.Event) {
		added = append(added, *event.Caption)
	})

	doc.SetRegion("captions", teamsCaptionList(
		speakerNode("t1", "Alice", "first message"),
		speakerNode("t2", "Bob", "second message"),
	))

	if len(added) != 2 {
		t.Fatalf("expected two tagged entries, got %d", len(added))
	}
	captions := adapter.Captions()
	if len(captions) != 2 {
		t.Fatalf("expected two committed entries, got %+v", captions)
	}

	// The write-back tag must land on the live document nodes.
	root := doc.Query("captions")
	for _, node := range root.Children {
		if id, ok := node.Attr("data-scribe-id"); !ok || id == "" {
			t.Fatalf("node %s was not tagged", node.NodeID)
		}
	}
}

func TestTeamsDuplicateNotificationsSuppressed(t *testing.T) {
	doc := newTeamsDoc()
	adapter := startedTeamsAdapter(t, doc)

	events := 0
	adapter.On(capture.EventCaptionAdded, func(capture.Event) { events++ })
	adapter.On(capture.EventCaptionUpdated, func(capture.Event) { events++ })

	list := teamsCaptionList(speakerNode("t1", "Alice", "stable text"))
	doc.SetRegion("captions", list)
	doc.SetRegion("captions", list)
	doc.SetRegion("captions", list)

	if events != 1 {
		t.Fatalf("unchanged notifications must be suppressed, got %d events", events)
	}
	if captions := adapter.Captions(); len(captions) != 1 {
		t.Fatalf("expected a single entry, got %+v", captions)
	}
}

func TestTeamsUpdatesTextByStableID(t *testing.T) {
	doc := newTeamsDoc()
	adapter := startedTeamsAdapter(t, doc)

	doc.SetRegion("captions", teamsCaptionList(speakerNode("t1", "Alice", "partial")))
	firstID := adapter.Captions()[0].ID

	var updated []session.CaptionEntry
	adapter.On(capture.EventCaptionUpdated, func(event capture.Event) {
		updated = append(updated, *event.Caption)
	})
	doc.SetRegion("captions", teamsCaptionList(speakerNode("t1", "Alice", "partial grown longer")))

	if len(updated) != 1 || updated[0].ID != firstID {
		t.Fatalf("expected in-place update keeping id %q, got %+v", firstID, updated)
	}
	captions := adapter.Captions()
	if len(captions) != 1 || captions[0].Text != "partial grown longer" {
		t.Fatalf("text not updated in place: %+v", captions)
	}
}

func TestTeamsSelfSpeakerUsesLocalName(t *testing.T) {
	doc := newTeamsDoc()
	adapter := startedTeamsAdapter(t, doc)

	doc.SetRegion("captions", teamsCaptionList(speakerNode("t1", "You", "from me")))
	captions := adapter.Captions()
	if len(captions) != 1 || captions[0].Speaker != "Grace Hopper" {
		t.Fatalf("self label not resolved: %+v", captions)
	}
}

func TestTeamsIgnoresEmptyNodes(t *testing.T) {
	doc := newTeamsDoc()
	adapter := startedTeamsAdapter(t, doc)

	doc.SetRegion("captions", teamsCaptionList(speakerNode("t1", "Alice", "")))
	if captions := adapter.Captions(); len(captions) != 0 {
		t.Fatalf("empty caption nodes must be ignored: %+v", captions)
	}
}
