package core

import (
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

// Host command names as they appear on the wire.
const (
	CmdMuteEveryone      = "mute-everyone"
	CmdDisableCamera     = "disable-camera"
	CmdStartRecord       = "start-record"
	CmdStopRecord        = "stop-record"
	CmdEnableChat        = "enable-chat"
	CmdDisableChat       = "disable-chat"
	CmdBanUser           = "ban-user"
	CmdUnbanUser         = "unban-user"
	CmdKick              = "kick"
	CmdMuteUser          = "mute-user"
	CmdUnmuteUser        = "unmute-user"
	CmdDisableCameraUser = "disable-camera-user"
	CmdEnableCameraUser  = "enable-camera-user"
)

// CommandResult tells the adapter what to deliver after a command
// committed in memory. Notified connections receive the hostAction
// event so their client applies the forced device change or learns it
// was removed.
type CommandResult struct {
	Cmd             string
	PresenceChanged bool
	Snapshot        RoomView
	Notified        []SignalConn
	RemovedConns    []domain.ConnID
	HostChanged     bool
	NewHost         domain.ConnID
	Recording       *bool
	ChatEnabled     *bool
	Empty           bool
}

// ApplyHostCommand runs one moderation command against a live snapshot
// of the room. Commands act on the connections present at execution
// time; future joiners are unaffected. All side effects commit under
// the room lock before any notification is delivered.
func (r *Room) ApplyHostCommand(actorConn domain.ConnID, actor domain.Identity, cmd, target string) (CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isPrivilegedLocked(actorConn, actor) {
		return CommandResult{}, ErrForbidden
	}

	res := CommandResult{Cmd: cmd}
	switch cmd {
	case CmdMuteEveryone, CmdDisableCamera:
		for _, p := range r.participants {
			for _, c := range p.conns {
				if cmd == CmdMuteEveryone {
					c.audioOn = false
				} else {
					c.videoOn = false
				}
				res.Notified = append(res.Notified, c.sig)
			}
			p.AudioOn, p.VideoOn = aggregate(p.conns)
		}
		res.PresenceChanged = true

	case CmdStartRecord, CmdStopRecord:
		r.recording = cmd == CmdStartRecord
		v := r.recording
		res.Recording = &v

	case CmdEnableChat, CmdDisableChat:
		r.chatEnabled = cmd == CmdEnableChat
		v := r.chatEnabled
		res.ChatEnabled = &v

	case CmdBanUser:
		if target == "" {
			return CommandResult{}, ErrInvalidTarget
		}
		r.banned[domain.UserKey(target)] = struct{}{}
		r.removeTargetLocked(target, &res)
		res.PresenceChanged = true

	case CmdUnbanUser:
		if target == "" {
			return CommandResult{}, ErrInvalidTarget
		}
		delete(r.banned, domain.UserKey(target))

	case CmdKick:
		conns := r.connsOfLocked(target)
		if len(conns) == 0 {
			return CommandResult{}, ErrInvalidTarget
		}
		r.removeTargetLocked(target, &res)
		res.PresenceChanged = true

	case CmdMuteUser, CmdUnmuteUser, CmdDisableCameraUser, CmdEnableCameraUser:
		conns := r.connsOfLocked(target)
		if len(conns) == 0 {
			return CommandResult{}, ErrInvalidTarget
		}
		for _, c := range conns {
			switch cmd {
			case CmdMuteUser:
				c.audioOn = false
			case CmdUnmuteUser:
				c.audioOn = true
			case CmdDisableCameraUser:
				c.videoOn = false
			case CmdEnableCameraUser:
				c.videoOn = true
			}
			res.Notified = append(res.Notified, c.sig)
			if p := r.participantOfLocked(c.id); p != nil {
				p.AudioOn, p.VideoOn = aggregate(p.conns)
			}
		}
		res.PresenceChanged = true

	default:
		log.Warn().Str("module", "core.room").
			Str("meeting", string(r.meetingID)).
			Str("cmd", cmd).
			Msg("unknown host command")
		return CommandResult{}, ErrUnknownCommand
	}

	if res.PresenceChanged {
		res.Snapshot = r.snapshotLocked()
	}
	res.Empty = len(r.participants) == 0

	log.Info().Str("module", "core.room").
		Str("meeting", string(r.meetingID)).
		Str("cmd", cmd).
		Str("target", target).
		Str("by", string(actorConn)).
		Msg("host command applied")
	return res, nil
}

// removeTargetLocked force-removes every connection the target resolves
// to (kick and ban share this), re-electing the host if it was removed.
func (r *Room) removeTargetLocked(target string, res *CommandResult) {
	conns := r.connsOfLocked(target)
	hostRemoved := false
	for _, c := range conns {
		res.Notified = append(res.Notified, c.sig)
		res.RemovedConns = append(res.RemovedConns, c.id)
		if c.id == r.hostConn {
			hostRemoved = true
		}
		if p := r.participantOfLocked(c.id); p != nil {
			delete(p.conns, c.id)
			if len(p.conns) == 0 {
				delete(r.participants, p.Key)
			} else {
				p.AudioOn, p.VideoOn = aggregate(p.conns)
			}
		}
	}
	if hostRemoved {
		r.hostConn, res.HostChanged = r.electLocked()
		res.NewHost = r.hostConn
	}
}
