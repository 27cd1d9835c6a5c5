package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

func (ctl *SignalWSController) handleStatus(connID domain.ConnID, conn *wsSignalConn, data []byte) {
	type statusPayload struct {
		Type    string `json:"type"`
		AudioOn *bool  `json:"audioOn,omitempty"`
		VideoOn *bool  `json:"videoOn,omitempty"`
	}
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}

	view, room, ok := ctl.Orch.Status(connID, p.AudioOn, p.VideoOn)
	if !ok {
		ctl.sendError(conn, core.ErrNotInMeeting)
		return
	}
	ctl.broadcastParticipants(room, view)
}

func (ctl *SignalWSController) handleHostCommand(
	connID domain.ConnID,
	identity domain.Identity,
	conn *wsSignalConn,
	data []byte,
) {
	type commandPayload struct {
		Type      string `json:"type"`
		MeetingID string `json:"meetingId"`
		Cmd       string `json:"cmd"`
		Target    string `json:"target,omitempty"`
	}
	var p commandPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}

	meetingID := domain.MeetingID(p.MeetingID)
	res, err := ctl.Orch.HostCommand(meetingID, connID, identity, p.Cmd, p.Target)
	if err != nil {
		// Unknown commands stay a room-silent no-op: diagnostic only.
		if errors.Is(err, core.ErrUnknownCommand) {
			return
		}
		log.Info().Err(err).Str("module", "signal").
			Str("conn", string(connID)).
			Str("cmd", p.Cmd).
			Msg("host command rejected")
		ctl.sendError(conn, err)
		return
	}

	// Targets learn first so their client applies the forced change.
	ctl.broadcast(res.Notified, struct {
		Type string `json:"type"`
		Cmd  string `json:"cmd"`
	}{
		Type: "hostAction",
		Cmd:  p.Cmd,
	})

	room, live := ctl.Orch.Registry.Room(meetingID)

	if res.Recording != nil && live {
		ctl.broadcast(room.AllConns(), struct {
			Type  string `json:"type"`
			Value bool   `json:"value"`
			By    string `json:"by"`
		}{
			Type:  "recording",
			Value: *res.Recording,
			By:    identity.DisplayName,
		})
	}
	if res.ChatEnabled != nil && live {
		ctl.broadcast(room.AllConns(), struct {
			Type    string `json:"type"`
			Enabled bool   `json:"enabled"`
		}{
			Type:    "chatToggled",
			Enabled: *res.ChatEnabled,
		})
	}

	if live {
		for _, removed := range res.RemovedConns {
			ctl.broadcast(room.AllConns(), struct {
				Type         string        `json:"type"`
				ConnectionID domain.ConnID `json:"connectionId"`
			}{
				Type:         "peerLeft",
				ConnectionID: removed,
			})
		}
		if res.HostChanged && res.NewHost != "" {
			ctl.broadcast(room.AllConns(), hostAssignedEvent(res.NewHost))
		}
		if res.PresenceChanged {
			ctl.broadcastParticipants(room, res.Snapshot)
		}
	}
}

func (ctl *SignalWSController) handlePing(conn *wsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	})
}
