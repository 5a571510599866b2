package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

type sessionEntry struct {
	Session core.Session
	Cancel  context.CancelFunc
	Rooms   map[domain.RoomID]struct{}
}

// Registry tracks every live connection and the two broadcast groups each
// one can belong to: the per-user channel (all connections of one identity,
// enrolled at bind) and room channels (enrolled at join). It is constructed
// at startup and handed to the coordinator; nothing else holds it.
//
// Membership here is a capability: a connection can only be fanned out to
// on a channel it was explicitly enrolled in, so a misdirected send is
// impossible to express.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*sessionEntry
	byUser   map[domain.UserID]map[domain.ConnID]struct{}
	byRoom   map[domain.RoomID]map[domain.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnID]*sessionEntry),
		byUser:   make(map[domain.UserID]map[domain.ConnID]struct{}),
		byRoom:   make(map[domain.RoomID]map[domain.ConnID]struct{}),
	}
}

// Bind registers a verified session and enrolls it in its identity's
// channel.
func (r *Registry) Bind(sess core.Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid, uid := sess.ID(), sess.User()
	r.sessions[cid] = &sessionEntry{
		Session: sess,
		Cancel:  cancel,
		Rooms:   make(map[domain.RoomID]struct{}),
	}
	if r.byUser[uid] == nil {
		r.byUser[uid] = make(map[domain.ConnID]struct{})
	}
	r.byUser[uid][cid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(uid)).Msg("bound session")
}

// Unbind drops a connection everywhere and reports which rooms it was
// enrolled in, so the caller can settle memberships.
func (r *Registry) Unbind(cid domain.ConnID) (domain.UserID, []domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return "", nil
	}
	uid := e.Session.User()
	rooms := make([]domain.RoomID, 0, len(e.Rooms))
	for rid := range e.Rooms {
		rooms = append(rooms, rid)
		r.dropFromRoom(rid, cid)
	}
	delete(r.sessions, cid)
	if conns := r.byUser[uid]; conns != nil {
		delete(conns, cid)
		if len(conns) == 0 {
			delete(r.byUser, uid)
		}
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(uid)).Msg("unbound session")
	return uid, rooms
}

// Subscribe enrolls a connection in a room channel.
func (r *Registry) Subscribe(rid domain.RoomID, cid domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[cid]
	if !ok {
		return
	}
	e.Rooms[rid] = struct{}{}
	if r.byRoom[rid] == nil {
		r.byRoom[rid] = make(map[domain.ConnID]struct{})
	}
	r.byRoom[rid][cid] = struct{}{}
}

// UnsubscribeUser removes every connection of an identity from a room
// channel; a leave is identity-scoped, not connection-scoped.
func (r *Registry) UnsubscribeUser(rid domain.RoomID, uid domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid := range r.byUser[uid] {
		if e, ok := r.sessions[cid]; ok {
			delete(e.Rooms, rid)
		}
		r.dropFromRoom(rid, cid)
	}
}

// DropRoom tears down an entire room channel.
func (r *Registry) DropRoom(rid domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cid := range r.byRoom[rid] {
		if e, ok := r.sessions[cid]; ok {
			delete(e.Rooms, rid)
		}
	}
	delete(r.byRoom, rid)
}

// UserConnsInRoom reports how many live connections of an identity remain
// enrolled in a room channel.
func (r *Registry) UserConnsInRoom(rid domain.RoomID, uid domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for cid := range r.byUser[uid] {
		if _, ok := r.byRoom[rid][cid]; ok {
			n++
		}
	}
	return n
}

// PublishUser delivers a frame to every live connection of one identity
// except the originator — and to nobody else's.
func (r *Registry) PublishUser(uid domain.UserID, except domain.ConnID, f core.Frame) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for cid := range r.byUser[uid] {
		if cid == except {
			continue
		}
		sent += r.deliver(cid, f)
	}
	return sent
}

// PublishRoom delivers a frame to every connection enrolled in a room
// channel. Room events are symmetric, so most callers pass no exclusion;
// a join announcement excludes the joining connection itself.
func (r *Registry) PublishRoom(rid domain.RoomID, except domain.ConnID, f core.Frame) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for cid := range r.byRoom[rid] {
		if cid == except {
			continue
		}
		sent += r.deliver(cid, f)
	}
	return sent
}

// Cancel tears down one connection's context (used at shutdown).
func (r *Registry) Cancel(cid domain.ConnID) {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if ok && e.Cancel != nil {
		e.Cancel()
	}
}

// ConnIDs snapshots every live connection id.
func (r *Registry) ConnIDs() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.sessions))
	for cid := range r.sessions {
		out = append(out, cid)
	}
	return out
}

// deliver is best-effort: a saturated connection just misses the broadcast.
// Durable state stays re-readable, so slow consumers lose latency, not
// correctness. Callers hold at least a read lock.
func (r *Registry) deliver(cid domain.ConnID, f core.Frame) int {
	e, ok := r.sessions[cid]
	if !ok {
		return 0
	}
	if err := e.Session.Conn().TrySend(f); err != nil {
		log.Debug().Str("module", "app.registry").Str("conn", string(cid)).Msg("dropped frame on backpressure")
		return 0
	}
	return 1
}

// dropFromRoom removes cid from a room set. Caller holds the write lock.
func (r *Registry) dropFromRoom(rid domain.RoomID, cid domain.ConnID) {
	if conns := r.byRoom[rid]; conns != nil {
		delete(conns, cid)
		if len(conns) == 0 {
			delete(r.byRoom, rid)
		}
	}
}
