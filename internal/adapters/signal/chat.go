package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

type chatPayload struct {
	Type string `json:"type"`
	Room string `json:"room" validate:"required"`
	Text string `json:"text" validate:"required,max=500"`
}

func (ctl *SyncWSController) handleRoomChat(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inRoomChat, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inRoomChat, domain.Errf(domain.KindValidation, "text is required (max 500)"))
		return
	}
	if !ctl.chatLimiter.Allow(sess.User()) {
		log.Debug().Str("module", "signal").Str("user", string(sess.User())).Msg("chat rate limited")
		ctl.sendError(c, inRoomChat, domain.Errf(domain.KindValidation, "slow down"))
		return
	}
	if err := ctl.Coord.Chat(ctx, sess, domain.RoomID(p.Room), p.Text); err != nil {
		ctl.sendError(c, inRoomChat, err)
	}
}
