package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meetscribe/internal/recorder"
	"meetscribe/internal/session"
)

// HistoryEntry summarizes one saved session.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	RecordID      string    `json:"record_id"`
	Title         string    `json:"title"`
	Platform      string    `json:"platform"`
	URL           string    `json:"url"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
	Duration      int64     `json:"duration_ms"`
	CaptionCount  int       `json:"caption_count"`
	ChatCount     int       `json:"chat_count"`
	AttendeeCount int       `json:"attendee_count"`
	IsBackup      bool      `json:"is_backup"`
	IsAutoSave    bool      `json:"is_auto_save"`
	SavedAt       time.Time `json:"saved_at"`
}

// SaveSession appends the record to the session history and publishes it
// as the last saved session. Records without captured data are declared
// no-ops and skipped.
func (s *Store) SaveSession(ctx context.Context, rec *session.Record) (recorder.SaveResult, error) {
	if !rec.HasData() {
		return recorder.SaveResult{Skipped: true, Reason: "no data"}, nil
	}
	ctx = ensureContext(ctx)

	payload, err := json.Marshal(rec)
	if err != nil {
		return recorder.SaveResult{}, fmt.Errorf("marshal session: %w", err)
	}

	now := time.Now().UTC()
	err = s.execWithRetry(ctx,
		`INSERT INTO session_history (
            record_id, title, platform, url, started_at, ended_at,
            duration_ms, caption_count, chat_count, attendee_count,
            is_backup, is_auto_save, payload, saved_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		nullableString(rec.MeetingInfo.Title),
		nullableString(string(rec.MeetingInfo.Platform)),
		nullableString(rec.MeetingInfo.URL),
		nullableTimeValue(rec.MeetingInfo.StartTime),
		nullableTime(rec.RecordTimings.EndTime),
		rec.RecordTimings.TotalDuration.Milliseconds(),
		len(rec.Captions),
		len(rec.ChatMessages),
		len(rec.AttendeeEvents),
		boolToInt(rec.IsBackup),
		boolToInt(rec.IsAutoSave),
		string(payload),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return recorder.SaveResult{}, fmt.Errorf("insert session: %w", err)
	}

	if err := s.SetLastSaved(ctx, rec); err != nil {
		return recorder.SaveResult{}, err
	}
	if err := s.trimHistory(ctx); err != nil {
		return recorder.SaveResult{}, err
	}
	return recorder.SaveResult{}, nil
}

// trimHistory drops the oldest rows beyond the configured cap.
func (s *Store) trimHistory(ctx context.Context) error {
	if s.historyLimit <= 0 {
		return nil
	}
	err := s.execWithRetry(ctx,
		`DELETE FROM session_history
         WHERE id NOT IN (SELECT id FROM session_history ORDER BY id DESC LIMIT ?)`,
		s.historyLimit,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// History lists saved sessions, newest first, up to limit (0 for all).
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + historyColumns + ` FROM session_history ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// HistoryRecord loads the full saved record for a history row.
func (s *Store) HistoryRecord(ctx context.Context, id int64) (*session.Record, error) {
	ctx = ensureContext(ctx)
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_history WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history record: %w", err)
	}
	var rec session.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode history record: %w", err)
	}
	return &rec, nil
}

// RemoveHistoryByRecordID deletes saved sessions carrying the record ID.
// Recovery uses this to drop the duplicate row written by orphan handling
// once the real session resumes.
func (s *Store) RemoveHistoryByRecordID(ctx context.Context, recordID string) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM session_history WHERE record_id = ?`, recordID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("remove history rows: %w", err)
	}
	return affected, nil
}

const historyColumns = "id, record_id, title, platform, url, started_at, ended_at, duration_ms, caption_count, chat_count, attendee_count, is_backup, is_auto_save, saved_at"

func scanHistory(scanner interface{ Scan(dest ...any) error }) (HistoryEntry, error) {
	var (
		entry      HistoryEntry
		title      sql.NullString
		platform   sql.NullString
		url        sql.NullString
		startedRaw sql.NullString
		endedRaw   sql.NullString
		isBackup   int
		isAutoSave int
		savedRaw   string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RecordID,
		&title,
		&platform,
		&url,
		&startedRaw,
		&endedRaw,
		&entry.Duration,
		&entry.CaptionCount,
		&entry.ChatCount,
		&entry.AttendeeCount,
		&isBackup,
		&isAutoSave,
		&savedRaw,
	); err != nil {
		return HistoryEntry{}, fmt.Errorf("scan history row: %w", err)
	}
	entry.Title = title.String
	entry.Platform = platform.String
	entry.URL = url.String
	entry.IsBackup = isBackup != 0
	entry.IsAutoSave = isAutoSave != 0
	if startedRaw.Valid {
		if t, err := parseTimeString(startedRaw.String); err == nil {
			entry.StartedAt = t
		}
	}
	if endedRaw.Valid {
		if t, err := parseTimeString(endedRaw.String); err == nil {
			entry.EndedAt = t
		}
	}
	if t, err := parseTimeString(savedRaw); err == nil {
		entry.SavedAt = t
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
