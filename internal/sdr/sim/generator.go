package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
)

const (
	twoPi = 2 * math.Pi

	DefaultNoiseLevel = 0.1

	// swept tone: 300 kHz * sin(0.05 t) at a low level
	sweepDeviation = 300e3
	sweepRate      = 0.05
	sweepAmplitude = 0.3 / 200

	// narrow wobble around the centre frequency
	wobbleDeviation = 100e3
	wobbleAmplitude = 0.1 / 200

	fmCarrier   = 100e3
	fmRate      = 1e3
	fmDeviation = 50e3

	amCarrier = 200e3
	amRate    = 5e3
	amDepth   = 0.8
)

const (
	SignalMultitone SignalType = "multitone"
	SignalNoise     SignalType = "noise"
	SignalFM        SignalType = "fm"
	SignalAM        SignalType = "am"
)

// SignalType selects what the simulator generates.
type SignalType string

func ParseSignalType(name string) (SignalType, error) {
	t := SignalType(strings.ToLower(strings.TrimSpace(name)))
	switch t {
	case SignalMultitone, SignalNoise, SignalFM, SignalAM:
		return t, nil
	}
	return "", fmt.Errorf("sim: unknown signal type: %q", name)
}

func (t SignalType) String() string {
	return string(t)
}

// Tone is a continuous wave at an offset from the centre frequency.
type Tone struct {
	Frequency float64 // Offset from centre, Hz
	Amplitude float64
	phase     float64
}

// DefaultTones returns the tones spread across a 1 MS/s display.
func DefaultTones() []Tone {
	return []Tone{
		{Frequency: -200e3, Amplitude: 0.5},
		{Frequency: 150e3, Amplitude: 0.3},
		{Frequency: 50e3, Amplitude: 0.4},
		{Frequency: -350e3, Amplitude: 0.2},
	}
}

type generator struct {
	mu sync.Mutex

	rng        *rand.Rand
	tones      []Tone
	noiseLevel float64
	signal     SignalType
	sweep      bool

	time    float64 // seconds since reception started
	fmPhase float64
}

func newGenerator(seed uint64) *generator {
	return &generator{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		tones:      DefaultTones(),
		noiseLevel: DefaultNoiseLevel,
		signal:     SignalMultitone,
		sweep:      true,
	}
}

func (g *generator) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.time = 0
	g.fmPhase = 0
}

// fill generates len(buf) samples at sampleRate with gainDB applied as 10^(g/20).
func (g *generator) fill(buf []complex64, sampleRate, gainDB float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dt := 1 / sampleRate
	gain := math.Pow(10, gainDB/20)

	switch g.signal {
	case SignalNoise:
		g.noise(buf, gain)
	case SignalFM:
		g.fm(buf, dt, gain)
	case SignalAM:
		g.am(buf, dt, gain)
	default:
		g.multitone(buf, dt, gain)
	}
}

func (g *generator) multitone(buf []complex64, dt, gain float64) {
	for i := range buf {
		var re, im float64

		for k := range g.tones {
			tone := &g.tones[k]
			re += tone.Amplitude * math.Cos(tone.phase)
			im += tone.Amplitude * math.Sin(tone.phase)
			tone.phase = wrapPhase(tone.phase + twoPi*tone.Frequency*dt)
		}

		if g.sweep {
			freq := sweepDeviation * math.Sin(g.time*sweepRate)
			phase := twoPi * freq * g.time
			re += sweepAmplitude * math.Cos(phase)
			im += sweepAmplitude * math.Sin(phase)

			freq = wobbleDeviation * (g.rng.NormFloat64() * 0.1)
			phase = twoPi * freq * g.time
			re += wobbleAmplitude * math.Cos(phase)
			im += wobbleAmplitude * math.Sin(phase)
		}

		if g.noiseLevel > 0 {
			re += g.noiseLevel * g.rng.NormFloat64()
			im += g.noiseLevel * g.rng.NormFloat64()
		}

		buf[i] = complex(float32(re*gain), float32(im*gain))
		g.time += dt
	}
}

func (g *generator) noise(buf []complex64, gain float64) {
	for i := range buf {
		buf[i] = complex(float32(g.rng.NormFloat64()*gain), float32(g.rng.NormFloat64()*gain))
	}
}

// fm is a 100 kHz carrier with 50 kHz deviation at a 1 kHz modulation rate.
func (g *generator) fm(buf []complex64, dt, gain float64) {
	for i := range buf {
		freq := fmCarrier + fmDeviation*math.Sin(twoPi*fmRate*g.time)
		g.fmPhase = wrapPhase(g.fmPhase + twoPi*freq*dt)

		re := gain * math.Cos(g.fmPhase)
		im := gain * math.Sin(g.fmPhase)
		re, im = g.addNoise(re, im)

		buf[i] = complex(float32(re), float32(im))
		g.time += dt
	}
}

// am is a real 200 kHz carrier, 80% modulated at 5 kHz.
func (g *generator) am(buf []complex64, dt, gain float64) {
	for i := range buf {
		carrier := math.Cos(twoPi * amCarrier * g.time)
		modulation := 1 + amDepth*math.Sin(twoPi*amRate*g.time)

		re, im := g.addNoise(gain*modulation*carrier, 0)

		buf[i] = complex(float32(re), float32(im))
		g.time += dt
	}
}

func (g *generator) addNoise(re, im float64) (float64, float64) {
	if g.noiseLevel <= 0 {
		return re, im
	}
	return re + g.noiseLevel*g.rng.NormFloat64(), im + g.noiseLevel*g.rng.NormFloat64()
}

func wrapPhase(phase float64) float64 {
	switch {
	case phase > twoPi:
		return phase - twoPi
	case phase < -twoPi:
		return phase + twoPi
	}
	return phase
}
