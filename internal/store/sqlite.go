// Package store is the two-tier state store: sqlite is the source of truth,
// a volatile cache in front of it is an accelerator only. Authority and
// capacity decisions always read the durable tier.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/hathor-music/syncd/internal/domain"
)

// DB wraps the durable sqlite tier.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS playback_states (
			user_id          TEXT PRIMARY KEY,
			track_id         TEXT NOT NULL DEFAULT '',
			position_seconds REAL NOT NULL DEFAULT 0,
			is_playing       INTEGER NOT NULL DEFAULT 0,
			volume           REAL NOT NULL DEFAULT 1,
			speed_multiplier REAL NOT NULL DEFAULT 1,
			pitch_semitones  INTEGER NOT NULL DEFAULT 0,
			stem_mix         TEXT NOT NULL DEFAULT '{}',
			updated_at       INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS rooms (
			room_id          TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			host_id          TEXT NOT NULL,
			track_id         TEXT NOT NULL DEFAULT '',
			position_seconds REAL NOT NULL DEFAULT 0,
			is_playing       INTEGER NOT NULL DEFAULT 0,
			is_public        INTEGER NOT NULL DEFAULT 0,
			max_participants INTEGER NOT NULL,
			status           TEXT NOT NULL DEFAULT 'open',
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS room_participants (
			room_id   TEXT NOT NULL REFERENCES rooms(room_id),
			user_id   TEXT NOT NULL,
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (room_id, user_id)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// asInt normalizes an aggregate value from the driver. Counts can arrive as
// int64 or as text depending on the query shape, and a text count compared
// against an integer bound is a bug class this boundary exists to kill.
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case []byte:
		return strconv.Atoi(string(n))
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate type %T", v)
	}
}

// ---- playback ----

// GetPlayback reads one listener's stored state. ok=false means no state
// has ever been written, which is not an error.
func (d *DB) GetPlayback(ctx context.Context, user domain.UserID) (domain.PlaybackState, bool, error) {
	var (
		st      domain.PlaybackState
		playing int
		stems   string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT track_id, position_seconds, is_playing, volume,
		       speed_multiplier, pitch_semitones, stem_mix, updated_at
		FROM playback_states WHERE user_id = ?`, string(user),
	).Scan(&st.TrackID, &st.PositionSeconds, &playing, &st.Volume,
		&st.SpeedMultiplier, &st.PitchSemitones, &stems, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlaybackState{}, false, nil
	}
	if err != nil {
		return domain.PlaybackState{}, false, fmt.Errorf("get playback: %w", err)
	}
	st.IsPlaying = playing != 0
	st.StemMix = map[string]float64{}
	if err := json.Unmarshal([]byte(stems), &st.StemMix); err != nil {
		return domain.PlaybackState{}, false, fmt.Errorf("decode stem mix: %w", err)
	}
	return st, true, nil
}

// SetPlayback upserts a listener's state, last-write-wins on updated_at.
// applied=false means a newer write already landed and this one was a no-op.
func (d *DB) SetPlayback(ctx context.Context, user domain.UserID, st domain.PlaybackState) (bool, error) {
	stems, err := json.Marshal(st.StemMix)
	if err != nil {
		return false, fmt.Errorf("encode stem mix: %w", err)
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO playback_states
			(user_id, track_id, position_seconds, is_playing, volume,
			 speed_multiplier, pitch_semitones, stem_mix, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			track_id = excluded.track_id,
			position_seconds = excluded.position_seconds,
			is_playing = excluded.is_playing,
			volume = excluded.volume,
			speed_multiplier = excluded.speed_multiplier,
			pitch_semitones = excluded.pitch_semitones,
			stem_mix = excluded.stem_mix,
			updated_at = excluded.updated_at
		WHERE playback_states.updated_at <= excluded.updated_at`,
		string(user), st.TrackID, st.PositionSeconds, boolInt(st.IsPlaying),
		st.Volume, st.SpeedMultiplier, st.PitchSemitones, string(stems), st.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("set playback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set playback: %w", err)
	}
	return n > 0, nil
}

// ---- rooms ----

// CreateRoom inserts the room record and its host as participant #1.
func (d *DB) CreateRoom(ctx context.Context, room domain.Room) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rooms
			(room_id, name, host_id, track_id, position_seconds, is_playing,
			 is_public, max_participants, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(room.ID), string(room.Name), string(room.HostID), room.TrackID,
		room.PositionSeconds, boolInt(room.IsPlaying), boolInt(room.IsPublic),
		room.MaxParticipants, room.Status, room.CreatedAt, room.UpdatedAt); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_participants (room_id, user_id, joined_at)
		VALUES (?, ?, ?)`,
		string(room.ID), string(room.HostID), room.CreatedAt); err != nil {
		return fmt.Errorf("create room host participant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// GetRoom reads the durable room record. This is the read every authority
// decision is made against.
func (d *DB) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, bool, error) {
	var (
		room            domain.Room
		playing, public int
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT room_id, name, host_id, track_id, position_seconds, is_playing,
		       is_public, max_participants, status, created_at, updated_at
		FROM rooms WHERE room_id = ?`, string(id),
	).Scan(&room.ID, &room.Name, &room.HostID, &room.TrackID,
		&room.PositionSeconds, &playing, &public, &room.MaxParticipants,
		&room.Status, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, false, nil
	}
	if err != nil {
		return domain.Room{}, false, fmt.Errorf("get room: %w", err)
	}
	room.IsPlaying = playing != 0
	room.IsPublic = public != 0
	return room, true, nil
}

// UpdateRoomPlayback writes the room's playback cursor in one statement;
// concurrent host controls serialize on this write.
func (d *DB) UpdateRoomPlayback(ctx context.Context, room domain.Room) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE rooms SET track_id = ?, position_seconds = ?, is_playing = ?,
		                 updated_at = ?
		WHERE room_id = ? AND status = 'open'`,
		room.TrackID, room.PositionSeconds, boolInt(room.IsPlaying),
		room.UpdatedAt, string(room.ID))
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n == 0 {
		return domain.Errf(domain.KindNotFound, "room %s not open", room.ID)
	}
	return nil
}

// CloseRoom transitions the room to its terminal state and clears the
// participant set.
func (d *DB) CloseRoom(ctx context.Context, id domain.RoomID, now int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM room_participants WHERE room_id = ?`, string(id)); err != nil {
		return fmt.Errorf("close room participants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms SET status = 'closed', is_playing = 0, updated_at = ?
		WHERE room_id = ?`, now, string(id)); err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	return nil
}

// ---- participants ----

// InsertParticipant adds user to the room if capacity allows, atomically
// with the capacity count. added=false means the pair already existed (a
// rejoin from another device). The count is normalized to an int in exactly
// one place (asInt) before it is ever compared to max.
func (d *DB) InsertParticipant(ctx context.Context, p domain.Participant, max int) (count int, added bool, err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("join room: %w", err)
	}
	defer tx.Rollback()

	var raw any
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_participants WHERE room_id = ?`,
		string(p.RoomID)).Scan(&raw); err != nil {
		return 0, false, fmt.Errorf("count participants: %w", err)
	}
	count, err = asInt(raw)
	if err != nil {
		return 0, false, fmt.Errorf("count participants: %w", err)
	}

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM room_participants WHERE room_id = ? AND user_id = ?`,
		string(p.RoomID), string(p.UserID)).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Not yet a member; capacity applies.
	case err != nil:
		return 0, false, fmt.Errorf("check participant: %w", err)
	default:
		return count, false, tx.Commit()
	}

	if count >= max {
		return count, false, domain.Errf(domain.KindCapacity, "room %s is full (%d/%d)", p.RoomID, count, max)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_participants (room_id, user_id, joined_at)
		VALUES (?, ?, ?)`, string(p.RoomID), string(p.UserID), p.JoinedAt); err != nil {
		return 0, false, fmt.Errorf("insert participant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("join room: %w", err)
	}
	return count + 1, true, nil
}

func (d *DB) RemoveParticipant(ctx context.Context, roomID domain.RoomID, user domain.UserID) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM room_participants WHERE room_id = ? AND user_id = ?`,
		string(roomID), string(user))
	if err != nil {
		return false, fmt.Errorf("remove participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove participant: %w", err)
	}
	return n > 0, nil
}

func (d *DB) IsParticipant(ctx context.Context, roomID domain.RoomID, user domain.UserID) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM room_participants WHERE room_id = ? AND user_id = ?`,
		string(roomID), string(user)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

func (d *DB) ListParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT room_id, user_id, joined_at FROM room_participants
		WHERE room_id = ? ORDER BY joined_at, user_id`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) CountParticipants(ctx context.Context, roomID domain.RoomID) (int, error) {
	var raw any
	if err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_participants WHERE room_id = ?`,
		string(roomID)).Scan(&raw); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return asInt(raw)
}

// RoomListing is a read-only discovery view.
type RoomListing struct {
	Room             domain.Room `json:"room"`
	ParticipantCount int         `json:"participant_count"`
}

// ListPublicRooms returns open public rooms with integer participant counts.
func (d *DB) ListPublicRooms(ctx context.Context) ([]RoomListing, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.room_id, r.name, r.host_id, r.track_id, r.position_seconds,
		       r.is_playing, r.is_public, r.max_participants, r.status,
		       r.created_at, r.updated_at, COUNT(p.user_id)
		FROM rooms r
		LEFT JOIN room_participants p ON p.room_id = r.room_id
		WHERE r.is_public = 1 AND r.status = 'open'
		GROUP BY r.room_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []RoomListing
	for rows.Next() {
		var (
			l               RoomListing
			playing, public int
			rawCount        any
		)
		if err := rows.Scan(&l.Room.ID, &l.Room.Name, &l.Room.HostID,
			&l.Room.TrackID, &l.Room.PositionSeconds, &playing, &public,
			&l.Room.MaxParticipants, &l.Room.Status, &l.Room.CreatedAt,
			&l.Room.UpdatedAt, &rawCount); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		l.Room.IsPlaying = playing != 0
		l.Room.IsPublic = public != 0
		if l.ParticipantCount, err = asInt(rawCount); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
