package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaybackStateValidate(t *testing.T) {
	base := DefaultPlaybackState()
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*PlaybackState)
	}{
		{"volume too high", func(s *PlaybackState) { s.Volume = 1.01 }},
		{"volume negative", func(s *PlaybackState) { s.Volume = -0.1 }},
		{"speed too low", func(s *PlaybackState) { s.SpeedMultiplier = 0.4 }},
		{"speed too high", func(s *PlaybackState) { s.SpeedMultiplier = 2.5 }},
		{"pitch too low", func(s *PlaybackState) { s.PitchSemitones = -13 }},
		{"pitch too high", func(s *PlaybackState) { s.PitchSemitones = 13 }},
		{"stem gain out of range", func(s *PlaybackState) { s.StemMix = map[string]float64{"bass": 1.2} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := DefaultPlaybackState()
			tc.mutate(&st)
			err := st.Validate()
			require.Error(t, err)
			require.Equal(t, KindValidation, KindOf(err))
		})
	}

	t.Run("boundary values pass", func(t *testing.T) {
		st := DefaultPlaybackState()
		st.Volume = 1
		st.SpeedMultiplier = 0.5
		st.PitchSemitones = 12
		st.StemMix = map[string]float64{"vocals": 0, "drums": 1}
		require.NoError(t, st.Validate())
	})
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindCapacity, KindOf(Errf(KindCapacity, "full")))
	// Uncategorized errors surface as a generic outage.
	require.Equal(t, KindUnavailable, KindOf(&plainError{}))
}

type plainError struct{}

func (*plainError) Error() string { return "boom" }
