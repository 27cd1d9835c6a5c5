package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

// ConnMeta is the connection→room index entry. Created on successful
// join, deleted on leave or forced removal.
type ConnMeta struct {
	ConnID    domain.ConnID
	MeetingID domain.MeetingID
	UserKey   domain.UserKey
}

// Registry owns every active room and the connection index. A room
// exists here iff it has at least one participant: created lazily on
// first valid join, removed synchronously when the last one leaves.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.MeetingID]*Room
	conns map[domain.ConnID]*ConnMeta

	maxParticipants int
	onDestroy       func(domain.MeetingID)
}

func NewRegistry(maxParticipants int) *Registry {
	return &Registry{
		rooms:           make(map[domain.MeetingID]*Room),
		conns:           make(map[domain.ConnID]*ConnMeta),
		maxParticipants: maxParticipants,
	}
}

// OnRoomDestroyed registers a hook fired after a room is removed, so
// per-room ephemeral state (rate windows) can be discarded with it.
func (g *Registry) OnRoomDestroyed(fn func(domain.MeetingID)) {
	g.mu.Lock()
	g.onDestroy = fn
	g.mu.Unlock()
}

// Join attaches a connection to the meeting's room, creating the room
// lazily. A rejected join leaves no state behind.
func (g *Registry) Join(meetingID domain.MeetingID, creatorID domain.UserID, connID domain.ConnID, identity domain.Identity, sig SignalConn) (JoinResult, *Room, error) {
	room := g.getOrCreate(meetingID, creatorID)

	res, err := room.Join(connID, identity, sig, g.maxParticipants)
	if err != nil {
		g.removeIfEmpty(meetingID)
		return JoinResult{}, nil, err
	}

	g.mu.Lock()
	// A concurrent departure may have collapsed the room between
	// getOrCreate and Join; re-register it so the registry invariant
	// (room present iff it has participants) holds.
	if cur, ok := g.rooms[meetingID]; !ok || cur != room {
		g.rooms[meetingID] = room
	}
	g.conns[connID] = &ConnMeta{ConnID: connID, MeetingID: meetingID, UserKey: res.UserKey}
	g.mu.Unlock()
	return res, room, nil
}

// Leave detaches a connection from whatever room it is in.
func (g *Registry) Leave(connID domain.ConnID) (LeaveResult, *Room, bool) {
	g.mu.Lock()
	meta, ok := g.conns[connID]
	if !ok {
		g.mu.Unlock()
		return LeaveResult{}, nil, false
	}
	delete(g.conns, connID)
	room := g.rooms[meta.MeetingID]
	g.mu.Unlock()

	if room == nil {
		return LeaveResult{}, nil, false
	}
	res, ok := room.Leave(connID)
	if !ok {
		return LeaveResult{}, nil, false
	}
	if res.Empty {
		g.removeIfEmpty(meta.MeetingID)
	}
	return res, room, true
}

// Room returns the live room for a meeting, if any.
func (g *Registry) Room(meetingID domain.MeetingID) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[meetingID]
	return r, ok
}

// RoomOf resolves a connection to its room and index entry.
func (g *Registry) RoomOf(connID domain.ConnID) (*Room, *ConnMeta, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	meta, ok := g.conns[connID]
	if !ok {
		return nil, nil, false
	}
	room, ok := g.rooms[meta.MeetingID]
	if !ok {
		return nil, nil, false
	}
	return room, meta, true
}

// DropConns removes index entries for connections a command force-removed,
// then collapses the room if it emptied.
func (g *Registry) DropConns(meetingID domain.MeetingID, conns []domain.ConnID) {
	g.mu.Lock()
	for _, id := range conns {
		delete(g.conns, id)
	}
	g.mu.Unlock()
	g.removeIfEmpty(meetingID)
}

// RoomCount is used by the ops endpoint and tests.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// ConnCount reports live indexed connections.
func (g *Registry) ConnCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

func (g *Registry) getOrCreate(meetingID domain.MeetingID, creatorID domain.UserID) *Room {
	g.mu.RLock()
	room, ok := g.rooms[meetingID]
	g.mu.RUnlock()
	if ok {
		room.SetCreatorIfAbsent(creatorID)
		return room
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok = g.rooms[meetingID]; ok {
		room.SetCreatorIfAbsent(creatorID)
		return room
	}
	room = newRoom(meetingID, creatorID)
	g.rooms[meetingID] = room
	log.Info().Str("module", "core.registry").Str("meeting", string(meetingID)).Msg("room created")
	return room
}

func (g *Registry) removeIfEmpty(meetingID domain.MeetingID) {
	g.mu.Lock()
	room, ok := g.rooms[meetingID]
	if !ok || !room.Empty() {
		g.mu.Unlock()
		return
	}
	delete(g.rooms, meetingID)
	fn := g.onDestroy
	g.mu.Unlock()

	log.Info().Str("module", "core.registry").Str("meeting", string(meetingID)).Msg("room destroyed")
	if fn != nil {
		fn(meetingID)
	}
}
