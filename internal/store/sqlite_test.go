package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hathor-music/syncd/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRoom(host domain.UserID, max int) domain.Room {
	return domain.Room{
		ID:              domain.RoomID("r-" + string(host)),
		Name:            "listening party",
		HostID:          host,
		MaxParticipants: max,
		Status:          domain.RoomOpen,
		CreatedAt:       1000,
		UpdatedAt:       1000,
	}
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int
	}{
		{"int64", int64(7), 7},
		{"int", 3, 3},
		{"text bytes", []byte("42"), 42},
		{"text string", "9", 9},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := asInt(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("unsupported type", func(t *testing.T) {
		_, err := asInt(3.14)
		require.Error(t, err)
	})
	t.Run("non-numeric text", func(t *testing.T) {
		_, err := asInt("many")
		require.Error(t, err)
	})
}

func TestPlaybackRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	st := domain.PlaybackState{
		TrackID:         "t1",
		PositionSeconds: 12.5,
		IsPlaying:       true,
		Volume:          0.8,
		SpeedMultiplier: 1.25,
		PitchSemitones:  -2,
		StemMix:         map[string]float64{"vocals": 0.5, "drums": 1},
		UpdatedAt:       100,
	}
	applied, err := db.SetPlayback(ctx, "u1", st)
	require.NoError(t, err)
	require.True(t, applied)

	got, ok, err := db.GetPlayback(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, st, got)
}

func TestPlaybackAbsentRead(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetPlayback(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlaybackLastWriteWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	newer := domain.PlaybackState{TrackID: "t2", Volume: 1, SpeedMultiplier: 1, StemMix: map[string]float64{}, UpdatedAt: 200}
	older := domain.PlaybackState{TrackID: "t1", Volume: 1, SpeedMultiplier: 1, StemMix: map[string]float64{}, UpdatedAt: 100}

	applied, err := db.SetPlayback(ctx, "u1", newer)
	require.NoError(t, err)
	require.True(t, applied)

	// The stale write is a no-op.
	applied, err = db.SetPlayback(ctx, "u1", older)
	require.NoError(t, err)
	require.False(t, applied)

	got, _, err := db.GetPlayback(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "t2", got.TrackID)
	require.Equal(t, int64(200), got.UpdatedAt)

	// Equal timestamps: the later arrival wins.
	tie := domain.PlaybackState{TrackID: "t3", Volume: 1, SpeedMultiplier: 1, StemMix: map[string]float64{}, UpdatedAt: 200}
	applied, err = db.SetPlayback(ctx, "u1", tie)
	require.NoError(t, err)
	require.True(t, applied)
}

func TestRoomLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	room := testRoom("h", 4)
	require.NoError(t, db.CreateRoom(ctx, room))

	got, ok, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, room, got)

	// Host joined as participant #1 at creation.
	count, err := db.CountParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got.TrackID = "t9"
	got.IsPlaying = true
	got.UpdatedAt = 2000
	require.NoError(t, db.UpdateRoomPlayback(ctx, got))

	got2, _, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, "t9", got2.TrackID)
	require.True(t, got2.IsPlaying)

	require.NoError(t, db.CloseRoom(ctx, room.ID, 3000))
	got3, _, err := db.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoomClosed, got3.Status)
	require.False(t, got3.IsPlaying)

	count, err = db.CountParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	// Playback writes against a closed room are rejected.
	got3.UpdatedAt = 4000
	err = db.UpdateRoomPlayback(ctx, got3)
	require.Error(t, err)
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestRoomNotFound(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetRoom(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertParticipantCapacity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	room := testRoom("h", 2)
	require.NoError(t, db.CreateRoom(ctx, room))

	count, added, err := db.InsertParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: "p1", JoinedAt: 1100}, room.MaxParticipants)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, 2, count)

	// Room full: third identity rejected with a capacity error.
	_, added, err = db.InsertParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: "p2", JoinedAt: 1200}, room.MaxParticipants)
	require.Error(t, err)
	require.False(t, added)
	require.Equal(t, domain.KindCapacity, domain.KindOf(err))

	count, err = db.CountParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// A rejoin of an existing participant is not a capacity violation and
	// does not grow the set.
	count, added, err = db.InsertParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: "p1", JoinedAt: 1300}, room.MaxParticipants)
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, 2, count)
}

func TestParticipants(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	room := testRoom("h", 10)
	require.NoError(t, db.CreateRoom(ctx, room))
	_, _, err := db.InsertParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: "p1", JoinedAt: 1100}, 10)
	require.NoError(t, err)

	ok, err := db.IsParticipant(ctx, room.ID, "p1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.IsParticipant(ctx, room.ID, "stranger")
	require.NoError(t, err)
	require.False(t, ok)

	list, err := db.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, domain.UserID("h"), list[0].UserID)
	require.Equal(t, domain.UserID("p1"), list[1].UserID)

	removed, err := db.RemoveParticipant(ctx, room.ID, "p1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = db.RemoveParticipant(ctx, room.ID, "p1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestListPublicRooms(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	pub := testRoom("h1", 5)
	pub.IsPublic = true
	require.NoError(t, db.CreateRoom(ctx, pub))

	priv := testRoom("h2", 5)
	require.NoError(t, db.CreateRoom(ctx, priv))

	closed := testRoom("h3", 5)
	closed.IsPublic = true
	require.NoError(t, db.CreateRoom(ctx, closed))
	require.NoError(t, db.CloseRoom(ctx, closed.ID, 2000))

	rooms, err := db.ListPublicRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Equal(t, pub.ID, rooms[0].Room.ID)
	require.Equal(t, 1, rooms[0].ParticipantCount)
}
