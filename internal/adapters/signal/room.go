package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/app"
	"github.com/hathor-music/syncd/internal/app/orch"
	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

type createRoomPayload struct {
	Type            string `json:"type"`
	Name            string `json:"name" validate:"required,max=64"`
	IsPublic        bool   `json:"is_public"`
	MaxParticipants int    `json:"max_participants" validate:"required,gte=1,lte=1000"`
}

func (ctl *SyncWSController) handleCreateRoom(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p createRoomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inCreateRoom, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inCreateRoom, domain.Errf(domain.KindValidation, "invalid room settings"))
		return
	}

	room, err := ctl.Coord.CreateRoom(ctx, sess, domain.RoomName(p.Name), p.IsPublic, p.MaxParticipants)
	if err != nil {
		ctl.sendError(c, inCreateRoom, err)
		return
	}
	ctl.sendJSON(c, struct {
		Type string      `json:"type"`
		Room domain.Room `json:"room"`
	}{Type: orch.EvRoomCreated, Room: room})
}

type roomRefPayload struct {
	Type string `json:"type"`
	Room string `json:"room" validate:"required"`
}

func (ctl *SyncWSController) handleJoinRoom(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p roomRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inJoinRoom, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inJoinRoom, domain.Errf(domain.KindValidation, "room is required"))
		return
	}

	snapshot, err := ctl.Coord.JoinRoom(ctx, sess, domain.RoomID(p.Room))
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(sess.ID())).Str("room", p.Room).Msg("join rejected")
		ctl.sendError(c, inJoinRoom, err)
		return
	}
	// Snapshot goes to the joiner only.
	ctl.sendJSON(c, snapshot)
}

func (ctl *SyncWSController) handleLeaveRoom(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p roomRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inLeaveRoom, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inLeaveRoom, domain.Errf(domain.KindValidation, "room is required"))
		return
	}
	if err := ctl.Coord.LeaveRoom(ctx, sess, domain.RoomID(p.Room)); err != nil {
		ctl.sendError(c, inLeaveRoom, err)
	}
}

type roomControlPayload struct {
	Type            string   `json:"type"`
	Room            string   `json:"room" validate:"required"`
	Action          string   `json:"action" validate:"required,oneof=play pause seek change-track"`
	TrackID         string   `json:"track_id"`
	PositionSeconds *float64 `json:"position_seconds" validate:"omitempty,gte=0"`
}

func (ctl *SyncWSController) handleRoomControl(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p roomControlPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inRoomControl, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inRoomControl, domain.Errf(domain.KindValidation, "invalid control"))
		return
	}

	err := ctl.Coord.Control(ctx, sess, domain.RoomID(p.Room), p.Action, app.ControlPayload{
		TrackID:         p.TrackID,
		PositionSeconds: p.PositionSeconds,
	})
	if err != nil {
		ctl.sendError(c, inRoomControl, err)
	}
	// On success the issuer hears the room-update broadcast like everyone
	// else; no direct reply.
}

func (ctl *SyncWSController) handleCloseRoom(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	var p roomRefPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inCloseRoom, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		ctl.sendError(c, inCloseRoom, domain.Errf(domain.KindValidation, "room is required"))
		return
	}
	if err := ctl.Coord.CloseRoom(ctx, sess, domain.RoomID(p.Room)); err != nil {
		ctl.sendError(c, inCloseRoom, err)
	}
}
