package domain

const (
	MinVolume = 0.0
	MaxVolume = 1.0
	MinSpeed  = 0.5
	MaxSpeed  = 2.0
	MinPitch  = -12
	MaxPitch  = 12
)

// PlaybackState is one listener's player position, mirrored across all of
// their devices. UpdatedAt is server-assigned unix milliseconds; the most
// recent write wins, no merging.
type PlaybackState struct {
	TrackID         string             `json:"track_id"`
	PositionSeconds float64            `json:"position_seconds"`
	IsPlaying       bool               `json:"is_playing"`
	Volume          float64            `json:"volume"`
	SpeedMultiplier float64            `json:"speed_multiplier"`
	PitchSemitones  int                `json:"pitch_semitones"`
	StemMix         map[string]float64 `json:"stem_mix"`
	UpdatedAt       int64              `json:"updated_at"`
}

// Validate enforces the per-field invariants. Called on every incoming
// state write regardless of how the payload was parsed.
func (s PlaybackState) Validate() error {
	if s.Volume < MinVolume || s.Volume > MaxVolume {
		return Errf(KindValidation, "volume %v out of range [%v, %v]", s.Volume, MinVolume, MaxVolume)
	}
	if s.SpeedMultiplier < MinSpeed || s.SpeedMultiplier > MaxSpeed {
		return Errf(KindValidation, "speed_multiplier %v out of range [%v, %v]", s.SpeedMultiplier, MinSpeed, MaxSpeed)
	}
	if s.PitchSemitones < MinPitch || s.PitchSemitones > MaxPitch {
		return Errf(KindValidation, "pitch_semitones %d out of range [%d, %d]", s.PitchSemitones, MinPitch, MaxPitch)
	}
	for stem, gain := range s.StemMix {
		if gain < 0 || gain > 1 {
			return Errf(KindValidation, "stem %q gain %v out of range [0, 1]", stem, gain)
		}
	}
	return nil
}

// DefaultPlaybackState is what a listener with no stored state gets back.
// A read of an absent state is not an error.
func DefaultPlaybackState() PlaybackState {
	return PlaybackState{
		Volume:          1.0,
		SpeedMultiplier: 1.0,
		StemMix:         map[string]float64{},
	}
}
