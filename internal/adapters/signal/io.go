package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

// Intent types accepted on the wire.
const (
	inUpdateState = "update-state"
	inGetState    = "get-state"
	inCreateRoom  = "create-room"
	inJoinRoom    = "join-room"
	inLeaveRoom   = "leave-room"
	inRoomControl = "room-control"
	inCloseRoom   = "close-room"
	inRoomChat    = "room-chat"
	inPing        = "ping"
)

func (ctl *SyncWSController) writePump(ctx context.Context, c *WsSyncConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SyncWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess core.Session, c *WsSyncConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sess.ID())).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Coord.Disconnect(context.WithoutCancel(ctx), sess.ID())
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ctl.handleIntent(ctx, sess, c, data)
	}
}

func (ctl *SyncWSController) handleIntent(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "", domain.Errf(domain.KindValidation, "malformed intent"))
		return
	}

	switch env.Type {
	case inUpdateState:
		ctl.handleUpdateState(ctx, sess, c, data)
	case inGetState:
		ctl.handleGetState(ctx, sess, c)
	case inCreateRoom:
		ctl.handleCreateRoom(ctx, sess, c, data)
	case inJoinRoom:
		ctl.handleJoinRoom(ctx, sess, c, data)
	case inLeaveRoom:
		ctl.handleLeaveRoom(ctx, sess, c, data)
	case inRoomControl:
		ctl.handleRoomControl(ctx, sess, c, data)
	case inCloseRoom:
		ctl.handleCloseRoom(ctx, sess, c, data)
	case inRoomChat:
		ctl.handleRoomChat(ctx, sess, c, data)
	case inPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown intent")
		ctl.sendError(c, env.Type, domain.Errf(domain.KindValidation, "unknown intent type"))
	}
}

func (ctl *SyncWSController) sendJSON(c *WsSyncConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// errorEnvelope names the rejected action and the reason category. Failures
// go to the originating connection only, never the channel.
type errorEnvelope struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (ctl *SyncWSController) sendError(c *WsSyncConn, action string, err error) {
	env := errorEnvelope{Type: "error", Action: action, Reason: string(domain.KindOf(err))}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindUnavailable {
		env.Detail = de.Msg
	}
	ctl.sendJSON(c, env)
}

func (ctl *SyncWSController) handlePing(c *WsSyncConn) {
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}
