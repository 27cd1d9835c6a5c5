// Package storage persists chat messages, audit entries and the meeting
// lookup table in Postgres. The signaling core treats every write here
// as best-effort.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

type Storage struct {
	db *sql.DB
}

// NewStorage opens a Postgres connection and runs migrations.
func NewStorage(connStr string) (*Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Storage{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("module", "storage").Msg("postgres store opened")
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	sender_id TEXT NOT NULL DEFAULT '',
	sender_name TEXT NOT NULL,
	target_conn TEXT NOT NULL DEFAULT '',
	target_user TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_meeting ON chat_messages(meeting_id, sent_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	action TEXT NOT NULL,
	by_user_id TEXT NOT NULL DEFAULT '',
	by_name TEXT NOT NULL,
	target TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_meeting ON audit_log(meeting_id, at);

CREATE TABLE IF NOT EXISTS meetings (
	id TEXT PRIMARY KEY,
	creator_id TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Storage) AppendMessage(ctx context.Context, msg domain.ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, meeting_id, sender_id, sender_name, target_conn, target_user, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, string(msg.MeetingID), string(msg.SenderID), msg.SenderName,
		string(msg.TargetConn), string(msg.TargetUser), msg.Text, msg.SentAt,
	)
	return err
}

func (s *Storage) History(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, sender_name, target_conn, target_user, body, sent_at
		 FROM (
			SELECT * FROM chat_messages WHERE meeting_id = $1 ORDER BY sent_at DESC LIMIT $2
		 ) recent
		 ORDER BY sent_at ASC`,
		string(meetingID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		m := domain.ChatMessage{MeetingID: meetingID}
		var senderID, targetConn, targetUser string
		if err := rows.Scan(&m.ID, &senderID, &m.SenderName, &targetConn, &targetUser, &m.Text, &m.SentAt); err != nil {
			return nil, err
		}
		m.SenderID = domain.UserID(senderID)
		m.TargetConn = domain.ConnID(targetConn)
		m.TargetUser = domain.UserKey(targetUser)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Storage) DeleteMessage(ctx context.Context, meetingID domain.MeetingID, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE meeting_id = $1 AND id = $2`,
		string(meetingID), messageID,
	)
	return err
}

// PruneMessages drops everything but the newest keep messages.
func (s *Storage) PruneMessages(ctx context.Context, meetingID domain.MeetingID, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages
		 WHERE meeting_id = $1 AND id NOT IN (
			SELECT id FROM chat_messages WHERE meeting_id = $1 ORDER BY sent_at DESC LIMIT $2
		 )`,
		string(meetingID), keep,
	)
	return err
}

func (s *Storage) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (meeting_id, action, by_user_id, by_name, target, metadata, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(entry.MeetingID), entry.Action, string(entry.ByUserID), entry.ByName,
		entry.Target, raw, entry.At,
	)
	return err
}

// Lookup implements core.MeetingLookup against the meetings table.
func (s *Storage) Lookup(ctx context.Context, meetingID domain.MeetingID) (domain.Meeting, error) {
	var creator string
	err := s.db.QueryRowContext(ctx,
		`SELECT creator_id FROM meetings WHERE id = $1`, string(meetingID),
	).Scan(&creator)
	if err == sql.ErrNoRows {
		return domain.Meeting{}, core.ErrMeetingNotFound
	}
	if err != nil {
		return domain.Meeting{}, err
	}
	return domain.Meeting{ID: meetingID, CreatorID: domain.UserID(creator)}, nil
}
