// Package beep plays short cues for listening state and mode changes.
package beep

import "math"

var disabled bool

func Disable() { disabled = true }

const sampleRate = 44100

// tone is one decaying sine tick.
type tone struct {
	freq   float64
	dur    float64 // seconds
	volume float64
	decay  float64
	gap    float64 // silence after the tick, seconds
}

var (
	// Start: high pitch, short
	startTones = []tone{{freq: 1200, dur: 0.2, volume: 0.5, decay: 60}}
	// End: medium pitch, slightly longer
	endTones = []tone{{freq: 900, dur: 0.2, volume: 0.5, decay: 40}}
	// Error: low pitch double-beep
	errorTones = []tone{
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30, gap: 0.05},
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30},
	}
	// Listen: rising pair
	listenTones = []tone{
		{freq: 800, dur: 0.06, volume: 0.45, decay: 50, gap: 0.03},
		{freq: 1200, dur: 0.12, volume: 0.45, decay: 50},
	}
	// Agent: falling pair
	agentTones = []tone{
		{freq: 1200, dur: 0.06, volume: 0.45, decay: 50, gap: 0.03},
		{freq: 700, dur: 0.12, volume: 0.45, decay: 50},
	}
)

// render produces interleaved int16 samples for the tones.
func render(tones []tone, channels int) []int16 {
	var out []int16
	for _, tn := range tones {
		n := int(float64(sampleRate) * tn.dur)
		for i := 0; i < n; i++ {
			t := float64(i) / float64(sampleRate)
			envelope := math.Exp(-t * tn.decay)
			s := int16(math.Sin(2*math.Pi*tn.freq*t) * 32767 * tn.volume * envelope)
			for range channels {
				out = append(out, s)
			}
		}
		out = append(out, make([]int16, int(float64(sampleRate)*tn.gap)*channels)...)
	}
	return out
}

// littleEndian packs samples as S16LE bytes.
func littleEndian(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// PlayMode plays the cue for switching into the named mode ("listen" or
// "agent").
func PlayMode(mode string) {
	if disabled {
		return
	}
	if mode == "agent" {
		play(cueAgent)
		return
	}
	play(cueListen)
}

func PlayStart() {
	if !disabled {
		play(cueStart)
	}
}

func PlayEnd() {
	if !disabled {
		play(cueEnd)
	}
}

func PlayError() {
	if !disabled {
		play(cueError)
	}
}

type cue int

const (
	cueStart cue = iota
	cueEnd
	cueError
	cueListen
	cueAgent
	numCues
)

var cueTones = [numCues][]tone{
	cueStart:  startTones,
	cueEnd:    endTones,
	cueError:  errorTones,
	cueListen: listenTones,
	cueAgent:  agentTones,
}
