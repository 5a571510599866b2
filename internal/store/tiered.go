package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/domain"
)

// States serves per-listener playback state through both tiers: reads try
// the cache first and fall through to sqlite on miss or outage, writes go
// durable-first and mirror into the cache best-effort. Callers never see a
// fast-tier failure.
type States struct {
	db    *DB
	cache Cache
	ttl   time.Duration
}

func NewStates(db *DB, cache Cache, ttl time.Duration) *States {
	return &States{db: db, cache: cache, ttl: ttl}
}

func playbackKey(user domain.UserID) string { return "playback:" + string(user) }

// Get returns the listener's current state, or the default state if none
// was ever written.
func (s *States) Get(ctx context.Context, user domain.UserID) (domain.PlaybackState, error) {
	key := playbackKey(user)
	if b, res := s.cache.Get(ctx, key); res == CacheHit {
		var st domain.PlaybackState
		if err := json.Unmarshal(b, &st); err == nil {
			return st, nil
		}
		// Corrupt cache entry: drop it and read through.
		s.cache.Del(ctx, key)
	}

	st, ok, err := s.db.GetPlayback(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("module", "store.states").Str("user", string(user)).Msg("durable read failed")
		return domain.PlaybackState{}, domain.Errf(domain.KindUnavailable, "state read failed")
	}
	if !ok {
		return domain.DefaultPlaybackState(), nil
	}
	s.mirror(ctx, key, st)
	return st, nil
}

// Set writes the state durably, last-write-wins on UpdatedAt. applied=false
// means a newer write was already stored.
func (s *States) Set(ctx context.Context, user domain.UserID, st domain.PlaybackState) (bool, error) {
	applied, err := s.db.SetPlayback(ctx, user, st)
	if err != nil {
		log.Error().Err(err).Str("module", "store.states").Str("user", string(user)).Msg("durable write failed")
		return false, domain.Errf(domain.KindUnavailable, "state write failed")
	}
	if applied {
		s.mirror(ctx, playbackKey(user), st)
	} else {
		// A newer write owns the row; invalidate rather than guess.
		s.cache.Del(ctx, playbackKey(user))
	}
	return applied, nil
}

func (s *States) mirror(ctx context.Context, key string, st domain.PlaybackState) {
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, b, s.ttl)
}
