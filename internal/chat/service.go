package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

const storeTimeout = 5 * time.Second

// Service persists, rate-limits and routes chat messages. In-memory
// delivery decisions never wait on the store: writes are fire-and-forget
// with their errors logged at this boundary.
type Service struct {
	reg     *core.Registry
	store   core.ChatStore
	limiter *RateLimiter
	retain  int
}

func NewService(reg *core.Registry, store core.ChatStore, limiter *RateLimiter, retain int) *Service {
	return &Service{reg: reg, store: store, limiter: limiter, retain: retain}
}

// Limiter exposes the rate limiter for lifecycle hooks.
func (s *Service) Limiter() *RateLimiter { return s.limiter }

// Delivery is the routing decision for one accepted message.
type Delivery struct {
	Message    domain.ChatMessage
	Room       *core.Room
	Broadcast  bool
	Recipients []core.SignalConn
}

// Send validates, persists and routes one message from a connection.
// target is empty for a room broadcast, or a connection id / user key
// for a direct message. Rejections carry the core error taxonomy and
// leave no trace: nothing persisted, nothing delivered.
func (s *Service) Send(senderConn domain.ConnID, target, text string) (Delivery, error) {
	room, meta, ok := s.reg.RoomOf(senderConn)
	if !ok {
		return Delivery{}, core.ErrNotInMeeting
	}
	identity, _ := room.IdentityOf(senderConn)
	if !room.ChatAllowed(senderConn, identity) {
		return Delivery{}, core.ErrChatDisabled
	}
	if !s.limiter.Allow(meta.UserKey) {
		return Delivery{}, core.ErrRateLimited
	}
	if len(text) > domain.MaxChatTextLen {
		text = text[:domain.MaxChatTextLen]
	}

	msg := domain.ChatMessage{
		ID:         uuid.NewString(),
		MeetingID:  meta.MeetingID,
		SenderID:   identity.UserID,
		SenderName: identity.DisplayName,
		Text:       text,
		SentAt:     time.Now().UTC(),
	}

	d := Delivery{Message: msg, Room: room}
	if target == "" {
		d.Broadcast = true
		d.Recipients = room.AllConns()
	} else {
		if _, isConn := room.Sig(domain.ConnID(target)); isConn {
			msg.TargetConn = domain.ConnID(target)
		} else {
			msg.TargetUser = domain.UserKey(target)
		}
		recipients := room.ConnsOf(target)
		if len(recipients) == 0 {
			return Delivery{}, core.ErrInvalidTarget
		}
		// Echo direct messages back to the sender's own connection.
		if own, ok := room.Sig(senderConn); ok {
			recipients = append(recipients, own)
		}
		d.Message = msg
		d.Recipients = recipients
	}

	s.persist(msg)
	return d, nil
}

// History replays persisted messages ascending by timestamp. A failing
// store yields an empty replay, not an error: join must stay resilient.
func (s *Service) History(ctx context.Context, meetingID domain.MeetingID, limit int) []domain.ChatMessage {
	msgs, err := s.store.History(ctx, meetingID, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("meeting", string(meetingID)).Msg("history read failed")
		return []domain.ChatMessage{}
	}
	return msgs
}

// Delete removes one message for host or creator, records the action in
// the audit trail and reports success so the adapter can broadcast it.
func (s *Service) Delete(meetingID domain.MeetingID, messageID string, requesterConn domain.ConnID, requester domain.Identity) error {
	room, ok := s.reg.Room(meetingID)
	if !ok {
		return core.ErrMeetingNotFound
	}
	if !room.IsPrivileged(requesterConn, requester) {
		return core.ErrForbidden
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.store.DeleteMessage(ctx, meetingID, messageID); err != nil {
			log.Error().Err(err).Str("module", "chat").Str("message", messageID).Msg("delete failed")
		}
		if err := s.store.AppendAudit(ctx, domain.AuditEntry{
			MeetingID: meetingID,
			Action:    "delete-message",
			ByUserID:  requester.UserID,
			ByName:    requester.DisplayName,
			Target:    messageID,
			At:        time.Now().UTC(),
		}); err != nil {
			log.Error().Err(err).Str("module", "chat").Msg("audit append failed")
		}
	}()
	return nil
}

// persist appends the message and prunes the room's history down to the
// retention cap, both out-of-band.
func (s *Service) persist(msg domain.ChatMessage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.store.AppendMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("module", "chat").Str("meeting", string(msg.MeetingID)).Msg("append failed")
			return
		}
		if err := s.store.PruneMessages(ctx, msg.MeetingID, s.retain); err != nil {
			log.Warn().Err(err).Str("module", "chat").Str("meeting", string(msg.MeetingID)).Msg("prune failed")
		}
	}()
}
