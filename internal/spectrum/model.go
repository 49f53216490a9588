package spectrum

import (
	"slices"
	"time"
)

// Session represents a single acquisition session with a specific device.
// Each session captures metadata about when and how the spectra were produced.
type Session struct {
	ID         int64     `json:"ID"`                      // Unique identifier for the session
	StartTime  time.Time `json:"startTime"`               // When the session began
	DeviceType string    `json:"deviceType"`              // Registry name of the backend (e.g., "simulation", "usrp")
	Serial     string    `json:"serial"`                  // Serial number of the device, empty for the simulator
	Config     *string   `json:"config,string,omitempty"` // Optional device configuration in JSON format
}

// Snapshot is a copy-out view of one analyzed spectrum. Consumers own all slices.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	CenterFrequency float64   `json:"centerFrequency"` // Hz, 0 for baseband display
	SampleRate      float64   `json:"sampleRate"`      // S/s
	FFTSize         int       `json:"fftSize"`
	Window          string    `json:"window"`
	Averages        int       `json:"averages"` // Number of frames folded into the snapshot

	Frequencies []float64 `json:"frequencies"`   // Bin frequencies in Hz
	Magnitude   []float64 `json:"magnitude"`     // Magnitude in dB (or 0..1 display scale)
	PSD         []float64 `json:"psd,omitempty"` // Power spectral density, dB/Hz
}

// BinWidth returns the frequency spacing of the snapshot bins.
func (s *Snapshot) BinWidth() float64 {
	if s.FFTSize == 0 {
		return 0
	}
	return s.SampleRate / float64(s.FFTSize)
}

// Peak returns the frequency and level of the strongest magnitude bin.
// ok is false when the snapshot holds no bins.
func (s *Snapshot) Peak() (frequency, level float64, ok bool) {
	if len(s.Magnitude) == 0 || len(s.Frequencies) < len(s.Magnitude) {
		return 0, 0, false
	}

	idx := 0
	for i, v := range s.Magnitude {
		if v > s.Magnitude[idx] {
			idx = i
		}
	}
	return s.Frequencies[idx], s.Magnitude[idx], true
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Frequencies = slices.Clone(s.Frequencies)
	c.Magnitude = slices.Clone(s.Magnitude)
	c.PSD = slices.Clone(s.PSD)
	return &c
}
