package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

// Memory is an in-memory ChatStore and MeetingLookup. It backs tests
// and the dev mode where no database is configured.
type Memory struct {
	mu       sync.Mutex
	messages map[domain.MeetingID][]domain.ChatMessage
	audit    []domain.AuditEntry
	meetings map[domain.MeetingID]domain.Meeting
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[domain.MeetingID][]domain.ChatMessage),
		meetings: make(map[domain.MeetingID]domain.Meeting),
	}
}

// AddMeeting seeds the lookup table.
func (m *Memory) AddMeeting(meeting domain.Meeting) {
	m.mu.Lock()
	m.meetings[meeting.ID] = meeting
	m.mu.Unlock()
}

func (m *Memory) AppendMessage(_ context.Context, msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.MeetingID] = append(m.messages[msg.MeetingID], msg)
	return nil
}

func (m *Memory) History(_ context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[meetingID]
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) DeleteMessage(_ context.Context, meetingID domain.MeetingID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[meetingID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			m.messages[meetingID] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) PruneMessages(_ context.Context, meetingID domain.MeetingID, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[meetingID]
	if keep <= 0 || len(msgs) <= keep {
		return nil
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	m.messages[meetingID] = append([]domain.ChatMessage(nil), msgs[len(msgs)-keep:]...)
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, entry domain.AuditEntry) error {
	m.mu.Lock()
	m.audit = append(m.audit, entry)
	m.mu.Unlock()
	return nil
}

// AuditEntries returns a copy of the audit trail, for tests.
func (m *Memory) AuditEntries() []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// MessageCount reports how many messages a meeting retains, for tests.
func (m *Memory) MessageCount(meetingID domain.MeetingID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[meetingID])
}

func (m *Memory) Lookup(_ context.Context, meetingID domain.MeetingID) (domain.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meeting, ok := m.meetings[meetingID]
	if !ok {
		return domain.Meeting{}, core.ErrMeetingNotFound
	}
	return meeting, nil
}
