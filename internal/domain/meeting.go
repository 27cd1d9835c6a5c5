package domain

type (
	// MeetingID is assigned when the meeting resource is created,
	// outside the signaling core.
	MeetingID string

	// ConnID identifies one live transport connection. A user with two
	// tabs open holds two ConnIDs under one UserKey.
	ConnID string
)

// Meeting is the slice of the meeting resource the core needs at join
// time. The rest of the resource lives behind the REST layer.
type Meeting struct {
	ID        MeetingID
	CreatorID UserID
}
