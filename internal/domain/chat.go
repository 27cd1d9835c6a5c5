package domain

import "time"

const MaxChatTextLen = 2000

// ChatMessage is an append-only chat record. TargetConn/TargetUser are
// empty for room broadcasts.
type ChatMessage struct {
	ID         string    `json:"id"`
	MeetingID  MeetingID `json:"meetingId"`
	SenderID   UserID    `json:"senderId,omitempty"`
	SenderName string    `json:"senderName"`
	TargetConn ConnID    `json:"targetConn,omitempty"`
	TargetUser UserKey   `json:"targetUser,omitempty"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// Broadcast reports whether the message addresses the whole room.
func (m ChatMessage) Broadcast() bool {
	return m.TargetConn == "" && m.TargetUser == ""
}
