package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

type chatEvent struct {
	Type      string        `json:"type"`
	ID        string        `json:"id"`
	Sender    chatSender    `json:"sender"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Target    domain.ConnID `json:"target,omitempty"`
}

type chatSender struct {
	UserID      domain.UserID `json:"userId,omitempty"`
	DisplayName string        `json:"displayName"`
}

func (ctl *SignalWSController) handleChat(connID domain.ConnID, conn *wsSignalConn, data []byte) {
	type chatPayload struct {
		Type   string `json:"type"`
		Target string `json:"target,omitempty"`
		Text   string `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}

	d, err := ctl.Orch.Chat.Send(connID, p.Target, p.Text)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("chat rejected")
		ctl.sendError(conn, err)
		return
	}

	ctl.broadcast(d.Recipients, chatEvent{
		Type: "chat",
		ID:   d.Message.ID,
		Sender: chatSender{
			UserID:      d.Message.SenderID,
			DisplayName: d.Message.SenderName,
		},
		Text:      d.Message.Text,
		Timestamp: d.Message.SentAt,
		Target:    d.Message.TargetConn,
	})
}

func (ctl *SignalWSController) handleDeleteMessage(
	connID domain.ConnID,
	identity domain.Identity,
	conn *wsSignalConn,
	data []byte,
) {
	type deletePayload struct {
		Type      string `json:"type"`
		MeetingID string `json:"meetingId"`
		ID        string `json:"id"`
	}
	var p deletePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}

	meetingID := domain.MeetingID(p.MeetingID)
	if err := ctl.Orch.Chat.Delete(meetingID, p.ID, connID, identity); err != nil {
		ctl.sendError(conn, err)
		return
	}

	if room, ok := ctl.Orch.Registry.Room(meetingID); ok {
		ctl.broadcast(room.AllConns(), struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}{
			Type: "messageDeleted",
			ID:   p.ID,
		})
	}
}
