package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/domain"
	"github.com/hathor-music/syncd/internal/store"
)

// ControlPayload carries the optional arguments of a room control action.
type ControlPayload struct {
	TrackID         string   `json:"track_id,omitempty"`
	PositionSeconds *float64 `json:"position_seconds,omitempty"`
}

// RoomService runs the room state machine against the durable store. Every
// authority and capacity decision re-reads the durable record; nothing a
// client claims about itself is ever consulted.
type RoomService struct {
	db  *store.DB
	now func() int64
}

func NewRoomService(db *store.DB) *RoomService {
	return &RoomService{db: db, now: func() int64 { return time.Now().UnixMilli() }}
}

// Create opens a room with the caller as host and participant #1.
func (s *RoomService) Create(ctx context.Context, host domain.UserID, name domain.RoomName, isPublic bool, maxParticipants int) (domain.Room, error) {
	now := s.now()
	room := domain.Room{
		ID:              domain.RoomID(uuid.NewString()),
		Name:            name,
		HostID:          host,
		IsPublic:        isPublic,
		MaxParticipants: maxParticipants,
		Status:          domain.RoomOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.CreateRoom(ctx, room); err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("host", string(host)).Msg("create room failed")
		return domain.Room{}, domain.Errf(domain.KindUnavailable, "room create failed")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Str("host", string(host)).Msg("room created")
	return room, nil
}

// Join adds an identity as participant if the room is open and has space.
// The capacity compare is int-vs-int; the store normalizes the count.
// added=false means the identity was already a participant (second device).
func (s *RoomService) Join(ctx context.Context, user domain.UserID, roomID domain.RoomID) (domain.Room, []domain.Participant, bool, error) {
	room, ok, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, nil, false, domain.Errf(domain.KindUnavailable, "room read failed")
	}
	if !ok || room.Status != domain.RoomOpen {
		return domain.Room{}, nil, false, domain.Errf(domain.KindNotFound, "room %s not found", roomID)
	}

	p := domain.Participant{RoomID: roomID, UserID: user, JoinedAt: s.now()}
	_, added, err := s.db.InsertParticipant(ctx, p, room.MaxParticipants)
	if err != nil {
		if domain.KindOf(err) == domain.KindCapacity {
			return domain.Room{}, nil, false, err
		}
		return domain.Room{}, nil, false, domain.Errf(domain.KindUnavailable, "room join failed")
	}

	participants, err := s.db.ListParticipants(ctx, roomID)
	if err != nil {
		return domain.Room{}, nil, false, domain.Errf(domain.KindUnavailable, "room join failed")
	}
	if added {
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("user", string(user)).Msg("participant joined")
	}
	return room, participants, added, nil
}

// Control applies a host action to the room's playback cursor. The hostId
// on the durable record is the authority; a mismatch is rejected no matter
// what the payload claims. The single UPDATE is where concurrent controls
// serialize.
func (s *RoomService) Control(ctx context.Context, user domain.UserID, roomID domain.RoomID, action string, payload ControlPayload) (domain.Room, error) {
	if !domain.ValidAction(action) {
		return domain.Room{}, domain.Errf(domain.KindValidation, "unknown action %q", action)
	}

	room, ok, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, domain.Errf(domain.KindUnavailable, "room read failed")
	}
	if !ok || room.Status != domain.RoomOpen {
		return domain.Room{}, domain.Errf(domain.KindNotFound, "room %s not found", roomID)
	}
	if room.HostID != user {
		log.Warn().Str("module", "app.rooms").Str("room", string(roomID)).Str("user", string(user)).Str("action", action).Msg("control denied: not host")
		return domain.Room{}, domain.Errf(domain.KindAuthorization, "only the host controls room %s", roomID)
	}

	switch action {
	case domain.ActionPlay:
		room.IsPlaying = true
		if payload.PositionSeconds != nil {
			room.PositionSeconds = *payload.PositionSeconds
		}
	case domain.ActionPause:
		room.IsPlaying = false
		if payload.PositionSeconds != nil {
			room.PositionSeconds = *payload.PositionSeconds
		}
	case domain.ActionSeek:
		if payload.PositionSeconds == nil {
			return domain.Room{}, domain.Errf(domain.KindValidation, "seek requires position_seconds")
		}
		room.PositionSeconds = *payload.PositionSeconds
	case domain.ActionChangeTrack:
		if payload.TrackID == "" {
			return domain.Room{}, domain.Errf(domain.KindValidation, "change-track requires track_id")
		}
		room.TrackID = payload.TrackID
		room.PositionSeconds = 0
		if payload.PositionSeconds != nil {
			room.PositionSeconds = *payload.PositionSeconds
		}
	}
	room.UpdatedAt = s.now()

	if err := s.db.UpdateRoomPlayback(ctx, room); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.Room{}, err
		}
		return domain.Room{}, domain.Errf(domain.KindUnavailable, "room update failed")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("action", action).Msg("room controlled")
	return room, nil
}

// Leave removes the identity's membership. A departing host leaves the room
// frozen in its last state: hostId is unchanged, so controls keep failing
// until the host returns.
func (s *RoomService) Leave(ctx context.Context, user domain.UserID, roomID domain.RoomID) (bool, error) {
	removed, err := s.db.RemoveParticipant(ctx, roomID, user)
	if err != nil {
		return false, domain.Errf(domain.KindUnavailable, "room leave failed")
	}
	if removed {
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("user", string(user)).Msg("participant left")
	}
	return removed, nil
}

// Close is host-only and terminal.
func (s *RoomService) Close(ctx context.Context, user domain.UserID, roomID domain.RoomID) (domain.Room, error) {
	room, ok, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, domain.Errf(domain.KindUnavailable, "room read failed")
	}
	if !ok || room.Status != domain.RoomOpen {
		return domain.Room{}, domain.Errf(domain.KindNotFound, "room %s not found", roomID)
	}
	if room.HostID != user {
		return domain.Room{}, domain.Errf(domain.KindAuthorization, "only the host closes room %s", roomID)
	}

	room.UpdatedAt = s.now()
	room.Status = domain.RoomClosed
	room.IsPlaying = false
	if err := s.db.CloseRoom(ctx, roomID, room.UpdatedAt); err != nil {
		return domain.Room{}, domain.Errf(domain.KindUnavailable, "room close failed")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room closed")
	return room, nil
}

// ParticipantCount reports the room's current membership size as an int.
func (s *RoomService) ParticipantCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	n, err := s.db.CountParticipants(ctx, roomID)
	if err != nil {
		return 0, domain.Errf(domain.KindUnavailable, "room read failed")
	}
	return n, nil
}

// ChatAllowed reports whether the identity is a current participant. Chat
// has no authority restriction beyond membership.
func (s *RoomService) ChatAllowed(ctx context.Context, user domain.UserID, roomID domain.RoomID) error {
	ok, err := s.db.IsParticipant(ctx, roomID, user)
	if err != nil {
		return domain.Errf(domain.KindUnavailable, "chat failed")
	}
	if !ok {
		return domain.Errf(domain.KindAuthorization, "not a participant of room %s", roomID)
	}
	return nil
}
