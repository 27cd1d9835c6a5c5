package domain

import "time"

// AuditEntry records a moderation action. Append-only; the core never
// reads these back.
type AuditEntry struct {
	MeetingID MeetingID
	Action    string
	ByUserID  UserID
	ByName    string
	Target    string
	Metadata  map[string]any
	At        time.Time
}
