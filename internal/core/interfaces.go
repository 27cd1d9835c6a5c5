package core

import (
	"context"

	"github.com/classmeet/server/internal/domain"
)

// Frame is a raw outbound payload, already serialized.
type Frame []byte

// SignalConn abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend(Frame) error
	Close()
}

// ChatStore is the persistence collaborator for chat and audit records.
// All methods are best-effort from the core's point of view: a failing
// store must never block an in-memory state transition.
type ChatStore interface {
	AppendMessage(ctx context.Context, msg domain.ChatMessage) error
	History(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, meetingID domain.MeetingID, messageID string) error
	PruneMessages(ctx context.Context, meetingID domain.MeetingID, keep int) error
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error
}

// MeetingLookup validates a meeting id and supplies its creator.
// Backed by the meeting resource store, outside this core.
type MeetingLookup interface {
	Lookup(ctx context.Context, meetingID domain.MeetingID) (domain.Meeting, error)
}
