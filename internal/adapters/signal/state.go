package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hathor-music/syncd/internal/app/orch"
	"github.com/hathor-music/syncd/internal/core"
	"github.com/hathor-music/syncd/internal/domain"
)

type updateStatePayload struct {
	Type            string             `json:"type"`
	TrackID         string             `json:"track_id"`
	PositionSeconds float64            `json:"position_seconds" validate:"gte=0"`
	IsPlaying       bool               `json:"is_playing"`
	Volume          float64            `json:"volume" validate:"gte=0,lte=1"`
	SpeedMultiplier float64            `json:"speed_multiplier" validate:"gte=0.5,lte=2"`
	PitchSemitones  int                `json:"pitch_semitones" validate:"gte=-12,lte=12"`
	StemMix         map[string]float64 `json:"stem_mix" validate:"dive,gte=0,lte=1"`
}

func (ctl *SyncWSController) handleUpdateState(ctx context.Context, sess core.Session, c *WsSyncConn, data []byte) {
	// Absent fields keep the player defaults instead of decoding to zero:
	// a payload that only moves the cursor must not mute the volume or
	// fail the speed range check.
	p := updateStatePayload{Volume: 1, SpeedMultiplier: 1}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, inUpdateState, domain.Errf(domain.KindValidation, "bad payload"))
		return
	}
	if err := ctl.validate.Struct(p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(sess.ID())).Msg("update-state rejected")
		ctl.sendError(c, inUpdateState, domain.Errf(domain.KindValidation, "state fields out of range"))
		return
	}

	st := domain.PlaybackState{
		TrackID:         p.TrackID,
		PositionSeconds: p.PositionSeconds,
		IsPlaying:       p.IsPlaying,
		Volume:          p.Volume,
		SpeedMultiplier: p.SpeedMultiplier,
		PitchSemitones:  p.PitchSemitones,
		StemMix:         p.StemMix,
	}
	if st.StemMix == nil {
		st.StemMix = map[string]float64{}
	}
	if err := ctl.Coord.UpdateState(ctx, sess, st); err != nil {
		ctl.sendError(c, inUpdateState, err)
	}
	// No reply on success; other devices hear state-sync.
}

func (ctl *SyncWSController) handleGetState(ctx context.Context, sess core.Session, c *WsSyncConn) {
	st, err := ctl.Coord.GetState(ctx, sess)
	if err != nil {
		ctl.sendError(c, inGetState, err)
		return
	}
	ctl.sendJSON(c, orch.StateEvent{Type: orch.EvState, State: st})
}
