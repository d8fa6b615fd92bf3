// Package storage persists analyzed meetings in SQLite and removes source
// audio once it is no longer needed.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2re1million/ekko/internal/models"
)

// ErrMeetingNotFound is returned by Get for unknown IDs.
var ErrMeetingNotFound = errors.New("storage: meeting not found")

// MeetingStore handles SQLite meeting records.
type MeetingStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMeetingStore opens (and if needed creates) the database at dbPath.
func NewMeetingStore(dbPath string) (*MeetingStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; concurrent pipeline runs queue here
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		date TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		participants TEXT NOT NULL,
		transcript TEXT NOT NULL,
		summary TEXT NOT NULL,
		decisions TEXT NOT NULL,
		action_items TEXT NOT NULL,
		tags TEXT NOT NULL,
		audio_file_path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_meetings_created_at ON meetings(created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &MeetingStore{db: db, now: time.Now}, nil
}

// Save inserts draft as a new meeting. Failures wrap models.ErrPersistence.
func (s *MeetingStore) Save(ctx context.Context, draft models.MeetingDraft) (models.PersistedMeeting, error) {
	now := s.now().UTC()
	m := models.PersistedMeeting{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		UpdatedAt:    now,
		MeetingDraft: draft,
	}

	cols, err := encodeLists(draft)
	if err != nil {
		return models.PersistedMeeting{}, fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}

	query := `
	INSERT INTO meetings (id, title, date, duration_seconds, participants, transcript, summary,
		decisions, action_items, tags, audio_file_path, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, draft.Title, formatTime(draft.Date), draft.DurationSeconds,
		cols.participants, draft.Transcript, draft.Summary,
		cols.decisions, cols.actionItems, cols.tags, draft.AudioFilePath,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return models.PersistedMeeting{}, fmt.Errorf("%w: failed to save meeting: %w", models.ErrPersistence, err)
	}
	return m, nil
}

const selectColumns = `id, title, date, duration_seconds, participants, transcript, summary,
	decisions, action_items, tags, audio_file_path, created_at, updated_at`

// Get retrieves a meeting by ID.
func (s *MeetingStore) Get(ctx context.Context, id string) (models.PersistedMeeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersistedMeeting{}, ErrMeetingNotFound
	}
	if err != nil {
		return models.PersistedMeeting{}, fmt.Errorf("failed to get meeting: %w", err)
	}
	return m, nil
}

// List returns the most recent meetings first.
func (s *MeetingStore) List(ctx context.Context, limit int) ([]models.PersistedMeeting, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM meetings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	meetings := []models.PersistedMeeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// Ping checks the database connection.
func (s *MeetingStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *MeetingStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(sc scanner) (models.PersistedMeeting, error) {
	var (
		m                                          models.PersistedMeeting
		date, createdAt, updatedAt                 string
		participants, decisions, actionItems, tags string
	)
	err := sc.Scan(&m.ID, &m.Title, &date, &m.DurationSeconds, &participants, &m.Transcript, &m.Summary,
		&decisions, &actionItems, &tags, &m.AudioFilePath, &createdAt, &updatedAt)
	if err != nil {
		return m, err
	}

	if m.Date, err = parseTime(date); err != nil {
		return m, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return m, err
	}

	for _, col := range []struct {
		raw  string
		dest any
	}{
		{participants, &m.Participants},
		{decisions, &m.Decisions},
		{actionItems, &m.ActionItems},
		{tags, &m.Tags},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return m, err
		}
	}
	return m, nil
}

type listColumns struct {
	participants, decisions, actionItems, tags string
}

func encodeLists(d models.MeetingDraft) (listColumns, error) {
	var out listColumns
	for _, col := range []struct {
		v    any
		dest *string
	}{
		{nonNil(d.Participants), &out.participants},
		{nonNil(d.Decisions), &out.decisions},
		{nonNilItems(d.ActionItems), &out.actionItems},
		{nonNil(d.Tags), &out.tags},
	} {
		b, err := json.Marshal(col.v)
		if err != nil {
			return out, err
		}
		*col.dest = string(b)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilItems(s []models.ActionItem) []models.ActionItem {
	if s == nil {
		return []models.ActionItem{}
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
