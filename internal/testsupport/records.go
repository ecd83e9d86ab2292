package testsupport

import (
	"fmt"
	"testing"
	"time"

	"meetscribe/internal/session"
)

// NewRecord builds a recording session record carrying captured data,
// suitable for save and backup tests.
func NewRecord(t testing.TB, captions int) *session.Record {
	t.Helper()

	rec := session.NewRecord()
	rec.ID = fmt.Sprintf("rec-%d", time.Now().UnixNano())
	rec.SessionState.State = session.StateRecording
	rec.MeetingInfo.Title = "Weekly Sync"
	rec.MeetingInfo.Platform = session.PlatformMeet
	rec.MeetingInfo.URL = "https://meet.google.com/abc-defg-hij"
	rec.MeetingInfo.StartTime = time.Now().UTC().Add(-time.Minute)
	rec.MeetingInfo.Attendees["Alice"] = true

	base := time.Now().UTC()
	for i := 0; i < captions; i++ {
		rec.Captions = append(rec.Captions, session.CaptionEntry{
			ID:        fmt.Sprintf("cap-%d", i),
			Speaker:   "Alice",
			Text:      fmt.Sprintf("caption %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	return rec
}
