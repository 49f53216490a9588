package sdr

import "fmt"

// fakeDevice is a minimal Device used by the registry tests.
type fakeDevice struct {
	name        string
	serial      string
	failInit    bool
	caps        Capabilities
	initialized bool
	shutdowns   *int

	frequency, sampleRate, gain, bandwidth float64
	antenna                                string

	errs ErrorState
}

func newFakeDevice(name string) *fakeDevice {
	return &fakeDevice{
		name:   name,
		serial: name + "-1",
		caps: Capabilities{
			MinFrequency:  1e6,
			MaxFrequency:  1e9,
			MinSampleRate: 1e3,
			MaxSampleRate: 10e6,
			MinGain:       0,
			MaxGain:       50,
			NumChannels:   1,
			Antennas:      []string{"RX"},
		},
	}
}

func (d *fakeDevice) Initialize(Config) bool {
	if d.failInit {
		return d.errs.Fail(fmt.Errorf("no %s attached", d.name))
	}
	d.initialized = true
	return true
}

func (d *fakeDevice) Shutdown() {
	d.initialized = false
	if d.shutdowns != nil {
		*d.shutdowns++
	}
}

func (d *fakeDevice) IsInitialized() bool                     { return d.initialized }
func (d *fakeDevice) StartReceiving(SampleCallback, int) bool { return false }
func (d *fakeDevice) StopReceiving()                          {}
func (d *fakeDevice) IsReceiving() bool                       { return false }
func (d *fakeDevice) SetClockSource(string) bool              { return true }
func (d *fakeDevice) SetTimeSource(string) bool               { return true }
func (d *fakeDevice) Frequency(int) float64                   { return d.frequency }
func (d *fakeDevice) SampleRate(int) float64                  { return d.sampleRate }
func (d *fakeDevice) Gain(int) float64                        { return d.gain }
func (d *fakeDevice) Bandwidth(int) float64                   { return d.bandwidth }
func (d *fakeDevice) Antenna(int) string                      { return d.antenna }
func (d *fakeDevice) DeviceType() string                      { return d.name }
func (d *fakeDevice) SerialNumber() string                    { return d.serial }
func (d *fakeDevice) DeviceInfo() string                      { return "fake " + d.name }
func (d *fakeDevice) Capabilities() Capabilities              { return d.caps }
func (d *fakeDevice) Status() Status                          { return Status{Initialized: d.initialized} }
func (d *fakeDevice) TotalSamplesReceived() uint64            { return 0 }
func (d *fakeDevice) OverflowCount() uint64                   { return 0 }
func (d *fakeDevice) LastError() string                       { return d.errs.Last() }
func (d *fakeDevice) ClearError()                             { d.errs.Clear() }

func (d *fakeDevice) SetFrequency(hz float64, _ int) bool {
	if err := d.caps.ValidateFrequency(hz); err != nil {
		return d.errs.Fail(err)
	}
	d.frequency = hz
	return true
}

func (d *fakeDevice) SetSampleRate(sps float64, _ int) bool {
	if err := d.caps.ValidateSampleRate(sps); err != nil {
		return d.errs.Fail(err)
	}
	d.sampleRate = sps
	return true
}

func (d *fakeDevice) SetGain(db float64, _ int) bool {
	if err := d.caps.ValidateGain(db); err != nil {
		return d.errs.Fail(err)
	}
	d.gain = db
	return true
}

func (d *fakeDevice) SetBandwidth(hz float64, _ int) bool {
	if err := d.caps.ValidateBandwidth(hz); err != nil {
		return d.errs.Fail(err)
	}
	d.bandwidth = hz
	return true
}

func (d *fakeDevice) SetAntenna(name string, _ int) bool {
	if err := d.caps.ValidateAntenna(name); err != nil {
		return d.errs.Fail(err)
	}
	d.antenna = name
	return true
}
