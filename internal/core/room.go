package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

// roomConn is one live connection inside a room, with its own device flags.
type roomConn struct {
	id      domain.ConnID
	sig     SignalConn
	audioOn bool
	videoOn bool
}

// Participant is a logical user inside a room. One participant may span
// several simultaneous connections (tabs, devices); its audio/video flags
// are the OR over all of them.
type Participant struct {
	Key      domain.UserKey
	Identity domain.Identity
	conns    map[domain.ConnID]*roomConn
	AudioOn  bool
	VideoOn  bool
}

// ParticipantView is a read-only projection for broadcasts (no transport fields).
type ParticipantView struct {
	UserKey  domain.UserKey  `json:"userKey"`
	Identity domain.Identity `json:"identity"`
	ConnIDs  []domain.ConnID `json:"connectionIds"`
	AudioOn  bool            `json:"audioOn"`
	VideoOn  bool            `json:"videoOn"`
}

// RoomView is the full presence snapshot broadcast after every mutation.
type RoomView struct {
	MeetingID    domain.MeetingID  `json:"meetingId"`
	Participants []ParticipantView `json:"list"`
	Total        int               `json:"total"`
	HostConn     domain.ConnID     `json:"hostConnectionId,omitempty"`
	CreatorID    domain.UserID     `json:"creatorId,omitempty"`
	ChatEnabled  bool              `json:"chatEnabled"`
	Recording    bool              `json:"recording"`
}

// Room is a threadsafe in-memory meeting state. One mutex guards every
// mutation of participants, host, bans and toggles; persistence never
// happens under this lock.
type Room struct {
	meetingID domain.MeetingID
	creatorID domain.UserID

	mu           sync.Mutex
	participants map[domain.UserKey]*Participant
	hostConn     domain.ConnID
	banned       map[domain.UserKey]struct{}
	chatEnabled  bool
	recording    bool
}

func newRoom(meetingID domain.MeetingID, creatorID domain.UserID) *Room {
	return &Room{
		meetingID:    meetingID,
		creatorID:    creatorID,
		participants: make(map[domain.UserKey]*Participant),
		banned:       make(map[domain.UserKey]struct{}),
		chatEnabled:  true,
	}
}

func (r *Room) MeetingID() domain.MeetingID { return r.meetingID }

func (r *Room) CreatorID() domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creatorID
}

// SetCreatorIfAbsent records the meeting owner once. No-op if already set.
func (r *Room) SetCreatorIfAbsent(creatorID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creatorID == "" {
		r.creatorID = creatorID
	}
}

// aggregate recomputes a participant's flags as the OR over its
// connections. Called after any connection-level flag change so the
// OR logic lives in exactly one place.
func aggregate(conns map[domain.ConnID]*roomConn) (audio, video bool) {
	for _, c := range conns {
		audio = audio || c.audioOn
		video = video || c.videoOn
	}
	return audio, video
}

// JoinResult reports what a successful join changed.
type JoinResult struct {
	UserKey      domain.UserKey
	HostAssigned bool
	Snapshot     RoomView
}

// Join attaches a connection, creating the Participant if this is the
// user's first connection. The creator's first connection becomes host.
func (r *Room) Join(connID domain.ConnID, identity domain.Identity, sig SignalConn, maxParticipants int) (JoinResult, error) {
	key := domain.KeyFor(identity, connID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, bad := r.banned[key]; bad {
		return JoinResult{}, ErrForbidden
	}

	p, ok := r.participants[key]
	if !ok {
		if maxParticipants > 0 && len(r.participants) >= maxParticipants {
			return JoinResult{}, ErrMeetingFull
		}
		p = &Participant{
			Key:      key,
			Identity: identity,
			conns:    make(map[domain.ConnID]*roomConn),
		}
		r.participants[key] = p
	}
	p.conns[connID] = &roomConn{id: connID, sig: sig, audioOn: true, videoOn: true}
	p.AudioOn, p.VideoOn = aggregate(p.conns)

	res := JoinResult{UserKey: key}
	if r.hostConn == "" && identity.Authenticated() && identity.UserID == r.creatorID {
		r.hostConn = connID
		res.HostAssigned = true
	}
	res.Snapshot = r.snapshotLocked()

	log.Info().Str("module", "core.room").
		Str("meeting", string(r.meetingID)).
		Str("conn", string(connID)).
		Str("user_key", string(key)).
		Bool("host", res.HostAssigned).
		Msg("participant joined")
	return res, nil
}

// LeaveResult reports what a departure changed.
type LeaveResult struct {
	UserKey         domain.UserKey
	ParticipantGone bool
	HostChanged     bool
	NewHost         domain.ConnID
	Empty           bool
	Snapshot        RoomView
}

// Leave detaches a connection. Removing the last connection removes the
// Participant; a departing host triggers re-election among survivors.
func (r *Room) Leave(connID domain.ConnID) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.participantOfLocked(connID)
	if p == nil {
		return LeaveResult{}, false
	}

	delete(p.conns, connID)
	res := LeaveResult{UserKey: p.Key}
	if len(p.conns) == 0 {
		delete(r.participants, p.Key)
		res.ParticipantGone = true
	} else {
		p.AudioOn, p.VideoOn = aggregate(p.conns)
	}

	if r.hostConn == connID {
		r.hostConn, res.HostChanged = r.electLocked()
		res.NewHost = r.hostConn
	}
	res.Empty = len(r.participants) == 0
	res.Snapshot = r.snapshotLocked()

	log.Info().Str("module", "core.room").
		Str("meeting", string(r.meetingID)).
		Str("conn", string(connID)).
		Str("user_key", string(p.Key)).
		Bool("host_changed", res.HostChanged).
		Msg("participant left")
	return res, true
}

// SetStatus updates one connection's device flags and re-aggregates the
// owning participant. Nil means "leave unchanged".
func (r *Room) SetStatus(connID domain.ConnID, audioOn, videoOn *bool) (RoomView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.participantOfLocked(connID)
	if p == nil {
		return RoomView{}, false
	}
	c := p.conns[connID]
	if audioOn != nil {
		c.audioOn = *audioOn
	}
	if videoOn != nil {
		c.videoOn = *videoOn
	}
	p.AudioOn, p.VideoOn = aggregate(p.conns)
	return r.snapshotLocked(), true
}

// IsPrivileged reports whether the requester may run moderation
// commands: the current host connection, or the meeting creator from
// any of their connections.
func (r *Room) IsPrivileged(connID domain.ConnID, identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPrivilegedLocked(connID, identity)
}

func (r *Room) isPrivilegedLocked(connID domain.ConnID, identity domain.Identity) bool {
	if connID != "" && connID == r.hostConn {
		return true
	}
	return identity.Authenticated() && identity.UserID == r.creatorID
}

// HasParticipant reports whether the connection is attached to this room.
func (r *Room) HasParticipant(connID domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participantOfLocked(connID) != nil
}

// ChatAllowed reports whether the connection may send chat right now.
func (r *Room) ChatAllowed(connID domain.ConnID, identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatEnabled || r.isPrivilegedLocked(connID, identity)
}

// ConnsOf resolves a chat/command target (connection id or user key) to
// all live connections it denotes.
func (r *Room) ConnsOf(target string) []SignalConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalConn, 0, 2)
	for _, c := range r.connsOfLocked(target) {
		out = append(out, c.sig)
	}
	return out
}

// AllConns returns every live connection in the room, for broadcasts.
func (r *Room) AllConns() []SignalConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalConn, 0, len(r.participants))
	for _, p := range r.participants {
		for _, c := range p.conns {
			out = append(out, c.sig)
		}
	}
	return out
}

// IdentityOf returns the identity owning a connection.
func (r *Room) IdentityOf(connID domain.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.participantOfLocked(connID); p != nil {
		return p.Identity, true
	}
	return domain.Identity{}, false
}

// Sig returns the transport endpoint of one connection.
func (r *Room) Sig(connID domain.ConnID) (SignalConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.participantOfLocked(connID); p != nil {
		return p.conns[connID].sig, true
	}
	return nil, false
}

// Snapshot returns the presence projection for broadcasting.
func (r *Room) Snapshot() RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Empty reports whether the last participant is gone.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants) == 0
}

func (r *Room) participantOfLocked(connID domain.ConnID) *Participant {
	for _, p := range r.participants {
		if _, ok := p.conns[connID]; ok {
			return p
		}
	}
	return nil
}

// connsOfLocked matches target against connection ids first, then user keys.
func (r *Room) connsOfLocked(target string) []*roomConn {
	for _, p := range r.participants {
		if c, ok := p.conns[domain.ConnID(target)]; ok {
			return []*roomConn{c}
		}
	}
	if p, ok := r.participants[domain.UserKey(target)]; ok {
		out := make([]*roomConn, 0, len(p.conns))
		for _, c := range p.conns {
			out = append(out, c)
		}
		return out
	}
	return nil
}

// electLocked deterministically picks a surviving connection as the new
// host: first participant by key order, first connection by id order.
func (r *Room) electLocked() (domain.ConnID, bool) {
	if len(r.participants) == 0 {
		return "", true
	}
	keys := make([]string, 0, len(r.participants))
	for k := range r.participants {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	p := r.participants[domain.UserKey(keys[0])]
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return domain.ConnID(ids[0]), true
}

func (r *Room) snapshotLocked() RoomView {
	views := make([]ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		ids := make([]domain.ConnID, 0, len(p.conns))
		for id := range p.conns {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		views = append(views, ParticipantView{
			UserKey:  p.Key,
			Identity: p.Identity,
			ConnIDs:  ids,
			AudioOn:  p.AudioOn,
			VideoOn:  p.VideoOn,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].UserKey < views[j].UserKey })
	return RoomView{
		MeetingID:    r.meetingID,
		Participants: views,
		Total:        len(views),
		HostConn:     r.hostConn,
		CreatorID:    r.creatorID,
		ChatEnabled:  r.chatEnabled,
		Recording:    r.recording,
	}
}
