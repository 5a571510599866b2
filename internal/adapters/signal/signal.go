// Package signal is the WebSocket adapter: it binds connections to verified
// identities, pumps frames, and translates wire envelopes into coordinator
// calls. No identity ever comes from a payload; it is fixed at upgrade time.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/app/orch"
	"github.com/hathor-music/syncd/internal/auth"
	"github.com/hathor-music/syncd/internal/config"
	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type SyncWSController struct {
	Coord    *orch.Coordinator
	Verifier *auth.Verifier
	Cfg      *config.Config

	validate    *validator.Validate
	chatLimiter *ChatRateLimiter
}

func NewSyncWSController(coord *orch.Coordinator, verifier *auth.Verifier, cfg *config.Config) *SyncWSController {
	return &SyncWSController{
		Coord:       coord,
		Verifier:    verifier,
		Cfg:         cfg,
		validate:    validator.New(),
		chatLimiter: NewChatRateLimiter(cfg.ChatBurst, cfg.ChatWindow),
	}
}

type WsSyncConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSyncConn) TrySend(f core.Frame) error {
	if f == nil {
		return nil
	}
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

func (c *WsSyncConn) Close() {
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

// HandleSync verifies the capability token, upgrades, binds the connection
// to its identity and starts the pumps. Verification happens before the
// upgrade: a bad token never becomes a connection.
func (ctl *SyncWSController) HandleSync(ctx context.Context, c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	user, err := ctl.Verifier.Verify(token)
	if err != nil {
		log.Warn().Str("module", "signal").Msg("rejected connection: bad token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsSyncConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	cid := domain.ConnID(uuid.NewString())
	sess := core.NewSession(cid, user, conn)

	connCtx, cancel := context.WithCancel(ctx)
	ctl.Coord.Registry.Bind(sess, cancel)
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("user", string(user)).Msg("connection bound")

	// Cancellation must unblock a pump parked in ReadMessage, so closing
	// the socket is tied to the connection context.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, sess, conn)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
