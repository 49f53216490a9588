package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

var testCapabilities = sdr.Capabilities{
	MinFrequency:         70e6,
	MaxFrequency:         6e9,
	MinSampleRate:        200e3,
	MaxSampleRate:        61.44e6,
	MinGain:              0,
	MaxGain:              76,
	AdjustableBandwidth:  true,
	ClockSourceSelection: true,
	NumChannels:          1,
	Antennas:             []string{"TX/RX", "RX2"},
}

type readFunc func(call int, buf []complex64) (int, driver.RecvCode, error)

// fakeDriver records every call and serves reads from a readFunc.
type fakeDriver struct {
	mu sync.Mutex

	open      bool
	opens     int
	closes    int
	setCalls  int
	streaming bool
	stops     int
	reads     int
	timeNow   *time.Duration

	clockSource, timeSource string
	frequency, sampleRate   float64
	gain, bandwidth         float64
	antenna                 string
	frequencyOffset         float64

	read readFunc
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		antenna: "RX2",
		read: func(_ int, buf []complex64) (int, driver.RecvCode, error) {
			time.Sleep(time.Millisecond)
			for i := range buf {
				buf[i] = 1
			}
			return len(buf), driver.RecvOK, nil
		},
	}
}

func (f *fakeDriver) Open(serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open {
		return driver.ErrBusy
	}
	f.open = true
	f.opens++
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.open = false
	f.closes++
	return nil
}

func (f *fakeDriver) Info() driver.Info {
	return driver.Info{Driver: "fake", Serial: "F00", Runtime: "/bin/fake"}
}

func (f *fakeDriver) NumChannels() int { return 1 }

func (f *fakeDriver) SetClockSource(source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.clockSource = source
	return nil
}

func (f *fakeDriver) SetTimeSource(source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.timeSource = source
	return nil
}

func (f *fakeDriver) ClockSource() string { return f.clockSource }
func (f *fakeDriver) TimeSource() string  { return f.timeSource }

func (f *fakeDriver) set(field *float64, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	*field = value
	return nil
}

func (f *fakeDriver) SetFrequency(hz float64, _ int) error {
	return f.set(&f.frequency, hz+f.frequencyOffset)
}

func (f *fakeDriver) SetSampleRate(sps float64, _ int) error { return f.set(&f.sampleRate, sps) }
func (f *fakeDriver) SetGain(db float64, _ int) error        { return f.set(&f.gain, db) }
func (f *fakeDriver) SetBandwidth(hz float64, _ int) error   { return f.set(&f.bandwidth, hz) }

func (f *fakeDriver) SetAntenna(name string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.antenna = name
	return nil
}

func (f *fakeDriver) get(field *float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *field
}

func (f *fakeDriver) Frequency(int) float64  { return f.get(&f.frequency) }
func (f *fakeDriver) SampleRate(int) float64 { return f.get(&f.sampleRate) }
func (f *fakeDriver) Gain(int) float64       { return f.get(&f.gain) }
func (f *fakeDriver) Bandwidth(int) float64  { return f.get(&f.bandwidth) }

func (f *fakeDriver) Antenna(int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.antenna
}

func (f *fakeDriver) StartStream(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = true
	return nil
}

func (f *fakeDriver) Read(buf []complex64, _ time.Duration) (int, driver.RecvCode, error) {
	f.mu.Lock()
	if !f.streaming {
		f.mu.Unlock()
		return 0, driver.RecvError, driver.ErrNotStreaming
	}
	call := f.reads
	f.reads++
	read := f.read
	f.mu.Unlock()

	return read(call, buf)
}

func (f *fakeDriver) StopStream() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming = false
	f.stops++
	return nil
}

func (f *fakeDriver) SetTimeNow(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeNow = &t
	return nil
}

func (f *fakeDriver) MasterClockRate() float64 { return 32e6 }

func (f *fakeDriver) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}
