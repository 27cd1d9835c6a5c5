package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classmeet/server/internal/app"
	"github.com/classmeet/server/internal/config"
	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController terminates websocket connections and translates
// wire events into orchestrator calls. One controller serves every
// connection; per-connection state travels through the pumps.
type SignalWSController struct {
	Orch *app.Orchestrator
	Cfg  *config.Config
}

func NewSignalWSController(orch *app.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{Orch: orch, Cfg: cfg}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps.
// Every upgrade gets a fresh connection id: two tabs of one user are
// two connections under the same user key.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	identity := IdentityFrom(c)
	connID := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").
		Str("conn", string(connID)).
		Str("user", string(identity.UserID)).
		Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, connID, identity, conn)
	}()
}

func (ctl *SignalWSController) sendJSON(c core.SignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

// sendError delivers a scoped error event to one connection only.
func (ctl *SignalWSController) sendError(c core.SignalConn, err error) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"error": err.Error(),
	})
}

// broadcast fans out one event to a set of connections.
func (ctl *SignalWSController) broadcast(conns []core.SignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	for _, c := range conns {
		if err := c.TrySend(b); err != nil {
			log.Debug().Err(err).Str("module", "signal").Msg("broadcast dropped")
		}
	}
}

// broadcastParticipants pushes a presence snapshot to the whole room.
// The snapshot always reflects state after the triggering mutation.
func (ctl *SignalWSController) broadcastParticipants(room *core.Room, view core.RoomView) {
	ctl.broadcast(room.AllConns(), participantsEvent{Type: "participants", RoomView: view})
}

type participantsEvent struct {
	Type string `json:"type"`
	core.RoomView
}
