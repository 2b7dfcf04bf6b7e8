package audio

import "math"

// Activity is the derived voice-activity signal. It exists for UI
// feedback only and never gates capture.
type Activity int

const (
	Silence Activity = iota
	Voice
)

func (a Activity) String() string {
	if a == Voice {
		return "voice"
	}
	return "silence"
}

// detector computes per-chunk energy against a threshold with
// hysteresis: one loud chunk flips to Voice, but it takes hangover
// consecutive quiet chunks to fall back to Silence.
type detector struct {
	threshold float64
	hangover  int

	state Activity
	quiet int
}

func newDetector(threshold float64, hangover int) *detector {
	if hangover < 0 {
		hangover = 0
	}
	return &detector{threshold: threshold, hangover: hangover}
}

// feed evaluates one chunk and reports the new state and whether it
// changed.
func (d *detector) feed(chunk []int16) (Activity, bool) {
	loud := rms(chunk) >= d.threshold

	switch d.state {
	case Silence:
		if loud {
			d.state = Voice
			d.quiet = 0
			return d.state, true
		}
	case Voice:
		if loud {
			d.quiet = 0
		} else {
			d.quiet++
			if d.quiet > d.hangover {
				d.state = Silence
				d.quiet = 0
				return d.state, true
			}
		}
	}
	return d.state, false
}

// rms is the root-mean-square energy of a chunk on the int16 scale.
func rms(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range chunk {
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(chunk)))
}
