package capture

import (
	"time"

	"github.com/google/uuid"

	"meetscribe/internal/session"
)

// reconcileBuffer holds the one in-progress utterance for platforms whose
// caption region exposes a single continuously mutating text node per
// active speaker. It is ephemeral and never persisted.
type reconcileBuffer struct {
	speaker   string
	text      string
	timestamp time.Time
	id        string
}

func (b *reconcileBuffer) empty() bool {
	return b.id == ""
}

// seed starts a fresh utterance with a newly generated id.
func (b *reconcileBuffer) seed(speaker, text string, at time.Time) session.CaptionEntry {
	b.speaker = speaker
	b.text = text
	b.timestamp = at
	b.id = uuid.NewString()
	return b.entry()
}

// update replaces the buffered text in place. The id and timestamp are
// kept so downstream consumers can reconcile by id across many updates.
func (b *reconcileBuffer) update(text string) session.CaptionEntry {
	b.text = text
	return b.entry()
}

// flush commits the buffered utterance and clears the buffer. The speaker
// self-label is rewritten to the captured local user name here, at commit
// time, so a late-resolved name still applies.
func (b *reconcileBuffer) flush(selfName string, at time.Time) (session.CaptionEntry, bool) {
	if b.empty() {
		return session.CaptionEntry{}, false
	}
	entry := b.entry()
	if entry.Speaker == selfSpeakerLabel && selfName != "" {
		entry.Speaker = selfName
	}
	start := entry.Timestamp
	end := at
	entry.StartTime = &start
	entry.EndTime = &end
	*b = reconcileBuffer{}
	return entry, true
}

func (b *reconcileBuffer) entry() session.CaptionEntry {
	return session.CaptionEntry{
		ID:        b.id,
		Speaker:   b.speaker,
		Text:      b.text,
		Timestamp: b.timestamp,
	}
}
