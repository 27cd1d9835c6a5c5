package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/chat"
	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

const storeTimeout = 5 * time.Second

// Orchestrator wires the registry, chat service and collaborators for
// the signal adapter. It owns every cross-component flow: join with
// history replay, departure with host re-election, moderation commands
// with their audit trail, and the opaque signaling relay.
type Orchestrator struct {
	Registry *core.Registry
	Chat     *chat.Service
	Store    core.ChatStore
	Meetings core.MeetingLookup

	HistoryLimit int
}

func NewOrchestrator(reg *core.Registry, chatSvc *chat.Service, store core.ChatStore, meetings core.MeetingLookup, historyLimit int) *Orchestrator {
	o := &Orchestrator{
		Registry:     reg,
		Chat:         chatSvc,
		Store:        store,
		Meetings:     meetings,
		HistoryLimit: historyLimit,
	}
	reg.OnRoomDestroyed(func(domain.MeetingID) { chatSvc.Limiter().Sweep() })
	return o
}

// JoinOutcome carries everything the adapter needs to acknowledge a join.
type JoinOutcome struct {
	Result  core.JoinResult
	Room    *core.Room
	History []domain.ChatMessage
}

// Join validates the meeting against the resource store, attaches the
// connection and replays persisted chat. A rejected join leaves no
// state behind.
func (o *Orchestrator) Join(ctx context.Context, meetingID domain.MeetingID, connID domain.ConnID, identity domain.Identity, sig core.SignalConn, historyLimit int) (JoinOutcome, error) {
	meeting, err := o.Meetings.Lookup(ctx, meetingID)
	if err != nil {
		if errors.Is(err, core.ErrMeetingNotFound) {
			return JoinOutcome{}, core.ErrMeetingNotFound
		}
		log.Error().Err(err).Str("module", "app").Str("meeting", string(meetingID)).Msg("meeting lookup failed")
		return JoinOutcome{}, core.ErrMeetingNotFound
	}

	res, room, err := o.Registry.Join(meetingID, meeting.CreatorID, connID, identity, sig)
	if err != nil {
		return JoinOutcome{}, err
	}

	if historyLimit <= 0 || historyLimit > o.HistoryLimit {
		historyLimit = o.HistoryLimit
	}
	hctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	history := o.Chat.History(hctx, meetingID, historyLimit)

	return JoinOutcome{Result: res, Room: room, History: history}, nil
}

// Leave detaches a connection and forgets the user's rate window once
// their last connection is gone.
func (o *Orchestrator) Leave(connID domain.ConnID) (core.LeaveResult, *core.Room, bool) {
	res, room, ok := o.Registry.Leave(connID)
	if ok && res.ParticipantGone {
		o.Chat.Limiter().Forget(res.UserKey)
	}
	return res, room, ok
}

// Status applies a device flag update and returns the fresh snapshot.
func (o *Orchestrator) Status(connID domain.ConnID, audioOn, videoOn *bool) (core.RoomView, *core.Room, bool) {
	room, _, ok := o.Registry.RoomOf(connID)
	if !ok {
		return core.RoomView{}, nil, false
	}
	view, ok := room.SetStatus(connID, audioOn, videoOn)
	return view, room, ok
}

// HostCommand applies one moderation command and records it in the
// audit trail. The audit write is fire-and-forget: it never blocks nor
// fails the command's effect.
func (o *Orchestrator) HostCommand(meetingID domain.MeetingID, actorConn domain.ConnID, actor domain.Identity, cmd, target string) (core.CommandResult, error) {
	room, ok := o.Registry.Room(meetingID)
	if !ok {
		return core.CommandResult{}, core.ErrMeetingNotFound
	}
	res, err := room.ApplyHostCommand(actorConn, actor, cmd, target)
	if err != nil {
		return core.CommandResult{}, err
	}

	if len(res.RemovedConns) > 0 {
		o.Registry.DropConns(meetingID, res.RemovedConns)
	}

	o.audit(domain.AuditEntry{
		MeetingID: meetingID,
		Action:    cmd,
		ByUserID:  actor.UserID,
		ByName:    actor.DisplayName,
		Target:    target,
		At:        time.Now().UTC(),
	})
	return res, nil
}

// Relay resolves the target endpoint for an opaque signaling payload.
// The payload itself is never inspected; an unknown target means a
// silent drop, so the second return distinguishes nothing for callers
// beyond "deliver or not".
func (o *Orchestrator) Relay(fromConn, toConn domain.ConnID) (core.SignalConn, domain.Identity, bool) {
	fromRoom, _, ok := o.Registry.RoomOf(fromConn)
	if !ok {
		return nil, domain.Identity{}, false
	}
	toRoom, _, ok := o.Registry.RoomOf(toConn)
	if !ok || toRoom != fromRoom {
		return nil, domain.Identity{}, false
	}
	sig, ok := toRoom.Sig(toConn)
	if !ok {
		return nil, domain.Identity{}, false
	}
	identity, _ := fromRoom.IdentityOf(fromConn)
	return sig, identity, true
}

func (o *Orchestrator) audit(entry domain.AuditEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := o.Store.AppendAudit(ctx, entry); err != nil {
			log.Error().Err(err).Str("module", "app").Str("action", entry.Action).Msg("audit append failed")
		}
	}()
}
