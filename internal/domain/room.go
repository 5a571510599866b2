package domain

type (
	RoomID   string
	RoomName string
)

const MaxRoomNameLen = 64

// Room status values. A closed room is terminal.
const (
	RoomOpen   = "open"
	RoomClosed = "closed"
)

// Room control actions a host may issue.
const (
	ActionPlay        = "play"
	ActionPause       = "pause"
	ActionSeek        = "seek"
	ActionChangeTrack = "change-track"
)

// Room is the durable record of a shared listening session. HostID is the
// only identity allowed to control or close it, and that check is always
// made against this record, never against anything a client sent.
type Room struct {
	ID              RoomID   `json:"id"`
	Name            RoomName `json:"name"`
	HostID          UserID   `json:"host_id"`
	TrackID         string   `json:"track_id"`
	PositionSeconds float64  `json:"position_seconds"`
	IsPlaying       bool     `json:"is_playing"`
	IsPublic        bool     `json:"is_public"`
	MaxParticipants int      `json:"max_participants"`
	Status          string   `json:"status"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
}

// Participant links one identity to one room. Unique per pair.
type Participant struct {
	RoomID   RoomID `json:"room_id"`
	UserID   UserID `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

func ValidAction(a string) bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek, ActionChangeTrack:
		return true
	}
	return false
}
