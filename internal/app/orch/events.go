package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

// Outbound event envelopes. Every frame a client receives is one of these.
const (
	EvStateSync         = "state-sync"
	EvState             = "state"
	EvRoomCreated       = "room-created"
	EvRoomSnapshot      = "room-snapshot"
	EvRoomUpdate        = "room-update"
	EvParticipantJoined = "participant-joined"
	EvParticipantLeft   = "participant-left"
	EvRoomClosed        = "room-closed"
	EvChatMessage       = "chat-message"
)

type StateEvent struct {
	Type  string               `json:"type"`
	State domain.PlaybackState `json:"state"`
}

type RoomSnapshotEvent struct {
	Type         string               `json:"type"`
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

type RoomUpdateEvent struct {
	Type   string      `json:"type"`
	Room   domain.Room `json:"room"`
	Action string      `json:"action"`
}

type ParticipantEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
	UserID domain.UserID `json:"user_id"`
}

type RoomClosedEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
}

type ChatEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"room_id"`
	UserID domain.UserID `json:"user_id"`
	Text   string        `json:"text"`
	Ts     int64         `json:"ts"`
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("event marshal")
		return nil
	}
	return b
}
