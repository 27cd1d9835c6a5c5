package core

import "errors"

// Errors surfaced as scoped error events to the requesting connection.
// They never abort the room or affect other participants.
var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrForbidden       = errors.New("forbidden")
	ErrNotInMeeting    = errors.New("not in meeting")
	ErrChatDisabled    = errors.New("chat disabled")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidTarget   = errors.New("recipient not found")
	ErrMeetingFull     = errors.New("meeting is full")
	ErrUnknownCommand  = errors.New("unknown command")
)
