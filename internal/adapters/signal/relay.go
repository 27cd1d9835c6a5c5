package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/domain"
)

// handleRelay forwards an opaque peer-signaling payload to one target
// connection, annotated with the sender. The payload is never parsed;
// an unresolvable target is a silent drop and retrying is the caller's
// business.
func (ctl *SignalWSController) handleRelay(connID domain.ConnID, conn *wsSignalConn, data []byte) {
	type relayPayload struct {
		Type    string          `json:"type"`
		Target  string          `json:"target"`
		Payload json.RawMessage `json:"payload"`
	}
	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.badPayload(conn, err)
		return
	}

	sig, identity, ok := ctl.Orch.Relay(connID, domain.ConnID(p.Target))
	if !ok {
		log.Debug().Str("module", "signal").
			Str("from", string(connID)).
			Str("target", p.Target).
			Msg("relay target not live, dropped")
		return
	}

	ctl.sendJSON(sig, struct {
		Type     string          `json:"type"`
		From     domain.ConnID   `json:"from"`
		Identity domain.Identity `json:"identity"`
		Payload  json.RawMessage `json:"payload"`
	}{
		Type:     "signal",
		From:     connID,
		Identity: identity,
		Payload:  p.Payload,
	})
}
