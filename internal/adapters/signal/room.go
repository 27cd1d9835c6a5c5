package signal

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

// IdentityKey is the gin context key the HTTP layer stores the resolved
// identity under.
const IdentityKey = "identity"

// IdentityFrom reads the verified identity the HTTP middleware resolved
// for this request. Anonymous requests become guests.
func IdentityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{DisplayName: domain.NewGuestName(), Role: domain.RoleGuest}
}

func (ctl *SignalWSController) handleJoin(
	connID domain.ConnID,
	identity domain.Identity,
	conn *wsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type         string `json:"type"`
		MeetingID    string `json:"meetingId"`
		HistoryLimit int    `json:"historyLimit,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}
	if p.MeetingID == "" {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "meetingId required",
		})
		return
	}

	// A connection sits in at most one room; joining again moves it.
	if _, _, ok := ctl.Orch.Registry.RoomOf(connID); ok {
		ctl.leave(connID)
	}

	out, err := ctl.Orch.Join(context.Background(), domain.MeetingID(p.MeetingID), connID, identity, conn, p.HistoryLimit)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").
			Str("conn", string(connID)).
			Str("meeting", p.MeetingID).
			Msg("join rejected")
		ctl.sendError(conn, err)
		return
	}
	view := out.Result.Snapshot

	ctl.sendJSON(conn, struct {
		Type         string           `json:"type"`
		MeetingID    domain.MeetingID `json:"meetingId"`
		ConnectionID domain.ConnID    `json:"connectionId"`
		CreatorID    domain.UserID    `json:"creatorId,omitempty"`
		ChatEnabled  bool             `json:"chatEnabled"`
		Recording    bool             `json:"recording"`
	}{
		Type:         "joined",
		MeetingID:    domain.MeetingID(p.MeetingID),
		ConnectionID: connID,
		CreatorID:    view.CreatorID,
		ChatEnabled:  view.ChatEnabled,
		Recording:    view.Recording,
	})

	ctl.sendJSON(conn, struct {
		Type     string               `json:"type"`
		Messages []domain.ChatMessage `json:"messages"`
	}{
		Type:     "chatHistory",
		Messages: out.History,
	})

	if out.Result.HostAssigned {
		ctl.broadcast(out.Room.AllConns(), hostAssignedEvent(connID))
	}

	ctl.broadcast(out.Room.AllConns(), struct {
		Type         string          `json:"type"`
		ConnectionID domain.ConnID   `json:"connectionId"`
		Identity     domain.Identity `json:"identity"`
	}{
		Type:         "peerJoin",
		ConnectionID: connID,
		Identity:     identity,
	})

	ctl.broadcastParticipants(out.Room, view)
}

func (ctl *SignalWSController) handleLeave(connID domain.ConnID, conn *wsSignalConn) {
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("leave")
	ctl.leave(connID)
	ctl.sendJSON(conn, map[string]any{"type": "left"})
}

// handleDisconnect runs on transport drop; same cleanup as an explicit
// leave, without the acknowledgment.
func (ctl *SignalWSController) handleDisconnect(connID domain.ConnID) {
	ctl.leave(connID)
}

func (ctl *SignalWSController) leave(connID domain.ConnID) {
	res, room, ok := ctl.Orch.Leave(connID)
	if !ok {
		return
	}

	ctl.broadcast(room.AllConns(), struct {
		Type         string        `json:"type"`
		ConnectionID domain.ConnID `json:"connectionId"`
	}{
		Type:         "peerLeft",
		ConnectionID: connID,
	})

	if res.HostChanged && res.NewHost != "" {
		ctl.broadcast(room.AllConns(), hostAssignedEvent(res.NewHost))
	}
	if !res.Empty {
		ctl.broadcastParticipants(room, res.Snapshot)
	}
}

func hostAssignedEvent(connID domain.ConnID) any {
	return struct {
		Type         string        `json:"type"`
		ConnectionID domain.ConnID `json:"connectionId"`
	}{
		Type:         "hostAssigned",
		ConnectionID: connID,
	}
}
