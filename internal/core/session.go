// Package core holds the transport-facing contracts the app layer fans out
// to. It never touches sockets itself; adapters own those.
package core

import "github.com/hathor-music/syncd/internal/domain"

// Frame is one outbound wire payload (encoded JSON envelope).
type Frame []byte

// Conn abstracts a system messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// Session binds a verified identity to one live transport endpoint. This is
// what channels store and fan out to; the identity on it is the only
// identity any intent from this connection ever carries.
type Session interface {
	ID() domain.ConnID
	User() domain.UserID
	Conn() Conn
}

type session struct {
	id   domain.ConnID
	user domain.UserID
	conn Conn
}

func NewSession(id domain.ConnID, user domain.UserID, conn Conn) Session {
	return &session{id: id, user: user, conn: conn}
}

func (s *session) ID() domain.ConnID   { return s.id }
func (s *session) User() domain.UserID { return s.user }
func (s *session) Conn() Conn          { return s.conn }
