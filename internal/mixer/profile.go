package mixer

import "fmt"

// Profile holds the ducking parameters. The audible tuning is not part
// of the engine's correctness contract, so it is configuration rather
// than constants.
type Profile struct {
	// Threshold is the sidechain level above which the music is
	// compressed, in linear amplitude (0..1].
	Threshold float64
	// Ratio is the compression ratio applied while the clip plays.
	Ratio float64
	// AttackMs is how fast the duck engages, in milliseconds.
	AttackMs int
	// ReleaseMs is how fast the music recovers, in milliseconds.
	ReleaseMs int
}

// DefaultProfile ducks firmly but releases gently, so speech-length
// clips read clearly without the music pumping.
func DefaultProfile() Profile {
	return Profile{
		Threshold: 0.05,
		Ratio:     8,
		AttackMs:  5,
		ReleaseMs: 300,
	}
}

// FilterGraph renders the ffmpeg filter_complex for this profile: the
// clip is split into a sidechain trigger and the audible signal, the
// music is compressed whenever the trigger is present, and the ducked
// music and the clip are additively mixed into one output.
func (p Profile) FilterGraph() string {
	return fmt.Sprintf(
		"[1:a]asplit=2[sc][clip];"+
			"[0:a][sc]sidechaincompress=threshold=%g:ratio=%g:attack=%d:release=%d[ducked];"+
			"[ducked][clip]amix=inputs=2:duration=first:dropout_transition=0[mixed]",
		p.Threshold, p.Ratio, p.AttackMs, p.ReleaseMs,
	)
}
