// Package orch is the synchronization coordinator: the single entry point
// for typed client intents. It attaches the identity bound to the issuing
// session, drives the store and room service, and owns every broadcast.
package orch

import (
	"context"
	"time"

	"github.com/hathor-music/syncd/internal/app"
	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
	"github.com/hathor-music/syncd/internal/store"
)

type Coordinator struct {
	Registry *app.Registry
	Rooms    *app.RoomService
	States   *store.States

	now func() int64
}

func NewCoordinator(reg *app.Registry, rooms *app.RoomService, states *store.States) *Coordinator {
	return &Coordinator{
		Registry: reg,
		Rooms:    rooms,
		States:   states,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// UpdateState validates and stores the issuing identity's playback state,
// then syncs every other live device of that identity. The originator gets
// no echo. UpdatedAt is server-assigned; a stale write (older than what is
// already stored) is dropped silently and nothing is synced.
func (c *Coordinator) UpdateState(ctx context.Context, sess core.Session, st domain.PlaybackState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	st.UpdatedAt = c.now()
	applied, err := c.States.Set(ctx, sess.User(), st)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	c.Registry.PublishUser(sess.User(), sess.ID(), encode(StateEvent{Type: EvStateSync, State: st}))
	return nil
}

// GetState returns the issuing identity's current state, defaulting if none
// was ever written.
func (c *Coordinator) GetState(ctx context.Context, sess core.Session) (domain.PlaybackState, error) {
	return c.States.Get(ctx, sess.User())
}

// CreateRoom opens a room hosted by the issuing identity and enrolls the
// issuing connection in the new room channel.
func (c *Coordinator) CreateRoom(ctx context.Context, sess core.Session, name domain.RoomName, isPublic bool, maxParticipants int) (domain.Room, error) {
	room, err := c.Rooms.Create(ctx, sess.User(), name, isPublic, maxParticipants)
	if err != nil {
		return domain.Room{}, err
	}
	c.Registry.Subscribe(room.ID, sess.ID())
	return room, nil
}

// JoinRoom adds the identity to the room and enrolls the issuing connection
// in the room channel. The joiner alone gets the snapshot back; the rest of
// the channel hears participant-joined, and only when the identity is new
// to the room. Enrollment happens before the announcement so a room-update
// racing the join cannot slip past the new member.
func (c *Coordinator) JoinRoom(ctx context.Context, sess core.Session, roomID domain.RoomID) (RoomSnapshotEvent, error) {
	room, participants, added, err := c.Rooms.Join(ctx, sess.User(), roomID)
	if err != nil {
		return RoomSnapshotEvent{}, err
	}
	c.Registry.Subscribe(roomID, sess.ID())
	if added {
		c.Registry.PublishRoom(roomID, sess.ID(), encode(ParticipantEvent{
			Type:   EvParticipantJoined,
			RoomID: roomID,
			UserID: sess.User(),
		}))
	}
	return RoomSnapshotEvent{Type: EvRoomSnapshot, Room: room, Participants: participants}, nil
}

// LeaveRoom drops the identity's membership and unsubscribes all of its
// connections from the room channel.
func (c *Coordinator) LeaveRoom(ctx context.Context, sess core.Session, roomID domain.RoomID) error {
	removed, err := c.Rooms.Leave(ctx, sess.User(), roomID)
	if err != nil {
		return err
	}
	c.Registry.UnsubscribeUser(roomID, sess.User())
	if removed {
		c.Registry.PublishRoom(roomID, "", encode(ParticipantEvent{
			Type:   EvParticipantLeft,
			RoomID: roomID,
			UserID: sess.User(),
		}))
	}
	return nil
}

// Control applies a host action and broadcasts the full updated room state
// to every channel member, the issuer included.
func (c *Coordinator) Control(ctx context.Context, sess core.Session, roomID domain.RoomID, action string, payload app.ControlPayload) error {
	room, err := c.Rooms.Control(ctx, sess.User(), roomID, action, payload)
	if err != nil {
		return err
	}
	c.Registry.PublishRoom(roomID, "", encode(RoomUpdateEvent{Type: EvRoomUpdate, Room: room, Action: action}))
	return nil
}

// CloseRoom is host-only; members hear room-closed, then the channel is
// torn down.
func (c *Coordinator) CloseRoom(ctx context.Context, sess core.Session, roomID domain.RoomID) error {
	if _, err := c.Rooms.Close(ctx, sess.User(), roomID); err != nil {
		return err
	}
	c.Registry.PublishRoom(roomID, "", encode(RoomClosedEvent{Type: EvRoomClosed, RoomID: roomID}))
	c.Registry.DropRoom(roomID)
	return nil
}

// Chat broadcasts an ephemeral message to the room channel. Participants
// only; never stored.
func (c *Coordinator) Chat(ctx context.Context, sess core.Session, roomID domain.RoomID, text string) error {
	if err := c.Rooms.ChatAllowed(ctx, sess.User(), roomID); err != nil {
		return err
	}
	c.Registry.PublishRoom(roomID, "", encode(ChatEvent{
		Type:   EvChatMessage,
		RoomID: roomID,
		UserID: sess.User(),
		Text:   text,
		Ts:     c.now(),
	}))
	return nil
}

// Disconnect settles a closed connection: unbind everywhere, and for each
// room where this was the identity's last enrolled connection, drop the
// membership and tell the channel.
func (c *Coordinator) Disconnect(ctx context.Context, connID domain.ConnID) {
	user, rooms := c.Registry.Unbind(connID)
	if user == "" {
		return
	}
	for _, roomID := range rooms {
		if c.Registry.UserConnsInRoom(roomID, user) > 0 {
			continue
		}
		removed, err := c.Rooms.Leave(ctx, user, roomID)
		if err != nil || !removed {
			continue
		}
		c.Registry.PublishRoom(roomID, "", encode(ParticipantEvent{
			Type:   EvParticipantLeft,
			RoomID: roomID,
			UserID: user,
		}))
	}
}
