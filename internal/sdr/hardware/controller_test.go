package hardware

import (
	"errors"
	"strings"
	"testing"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/driver"
)

func newInitializedController(t *testing.T, caps sdr.Capabilities) (*Controller, *fakeDriver) {
	t.Helper()

	drv := newFakeDriver()
	c := NewController("fake", drv, caps)
	if err := c.Initialize("F00"); err != nil {
		t.Fatalf("Failed to initialize controller: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c, drv
}

func TestController_Initialize(t *testing.T) {
	c, drv := newInitializedController(t, testCapabilities)

	if c.Frequency(0) != sdr.DefaultFrequency || c.SampleRate(0) != sdr.DefaultSampleRate || c.Gain(0) != sdr.DefaultGain {
		t.Errorf("Expected defaults, got %g Hz %g S/s %g dB", c.Frequency(0), c.SampleRate(0), c.Gain(0))
	}
	if drv.clockSource != "internal" || drv.timeSource != "internal" {
		t.Errorf("Expected internal sources, got %q %q", drv.clockSource, drv.timeSource)
	}
	if c.SerialNumber() != "F00" {
		t.Errorf("Expected serial F00, got %q", c.SerialNumber())
	}

	if err := c.Initialize("F00"); !errors.Is(err, driver.ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if c.LastError() != "device is busy" {
		t.Errorf("Unexpected last error: %q", c.LastError())
	}

	c.Shutdown()
	if c.IsInitialized() || drv.closes != 1 {
		t.Errorf("Expected driver closed once, got %d", drv.closes)
	}
	if c.LastError() != "" {
		t.Errorf("Expected error cleared on shutdown, got %q", c.LastError())
	}

	if err := c.Initialize("F00"); err != nil {
		t.Errorf("Failed to initialize controller after shutdown: %v", err)
	}
}

func TestController_InitializeClampsDefaults(t *testing.T) {
	testCases := []struct {
		name                  string
		caps                  sdr.Capabilities
		frequency, rate, gain float64
	}{
		{
			name:      "above",
			caps:      sdr.Capabilities{MinFrequency: 400e6, MaxFrequency: 6e9, MinSampleRate: 2e6, MaxSampleRate: 20e6, MinGain: 30, MaxGain: 62, NumChannels: 1},
			frequency: 400e6,
			rate:      2e6,
			gain:      30,
		},
		{
			name:      "below",
			caps:      sdr.Capabilities{MinFrequency: 1e6, MaxFrequency: 30e6, MinSampleRate: 100e3, MaxSampleRate: 250e3, MinGain: 0, MaxGain: 10, NumChannels: 1},
			frequency: 30e6,
			rate:      250e3,
			gain:      10,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newInitializedController(t, tc.caps)

			if c.Frequency(0) != tc.frequency || c.SampleRate(0) != tc.rate || c.Gain(0) != tc.gain {
				t.Errorf("Expected %g Hz %g S/s %g dB, got %g Hz %g S/s %g dB",
					tc.frequency, tc.rate, tc.gain, c.Frequency(0), c.SampleRate(0), c.Gain(0))
			}
		})
	}
}

func TestController_NotInitialized(t *testing.T) {
	c := NewController("fake", newFakeDriver(), testCapabilities)

	if err := c.SetFrequency(433e6, 0); !errors.Is(err, sdr.ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if c.Frequency(0) != 0 {
		t.Errorf("Expected 0 frequency, got %g", c.Frequency(0))
	}
	if err := c.SyncClock(); !errors.Is(err, sdr.ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestController_ValidatesBeforeDriver(t *testing.T) {
	testCases := []struct {
		name  string
		apply func(c *Controller) error
	}{
		{"frequency below range", func(c *Controller) error { return c.SetFrequency(10e6, 0) }},
		{"frequency above range", func(c *Controller) error { return c.SetFrequency(7e9, 0) }},
		{"sample rate", func(c *Controller) error { return c.SetSampleRate(100e6, 0) }},
		{"gain", func(c *Controller) error { return c.SetGain(80, 0) }},
		{"zero bandwidth", func(c *Controller) error { return c.SetBandwidth(0, 0) }},
		{"bandwidth above max rate", func(c *Controller) error { return c.SetBandwidth(70e6, 0) }},
		{"antenna", func(c *Controller) error { return c.SetAntenna("RX1", 0) }},
		{"empty clock source", func(c *Controller) error { return c.SetClockSource("") }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, drv := newInitializedController(t, testCapabilities)
			calls := drv.calls()

			err := tc.apply(c)

			var configErr *driver.ConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if drv.calls() != calls {
				t.Error("Expected driver to be left untouched")
			}
			if c.LastError() != err.Error() {
				t.Errorf("Expected last error %q, got %q", err.Error(), c.LastError())
			}
		})
	}
}

func TestController_InvalidChannel(t *testing.T) {
	c, _ := newInitializedController(t, testCapabilities)

	if err := c.SetGain(10, 1); !errors.Is(err, sdr.ErrInvalidChannel) {
		t.Errorf("Expected ErrInvalidChannel, got %v", err)
	}
	if !strings.Contains(c.LastError(), "invalid channel: 1") {
		t.Errorf("Unexpected last error: %q", c.LastError())
	}
}

func TestController_FrequencyTolerance(t *testing.T) {
	c, drv := newInitializedController(t, testCapabilities)

	drv.frequencyOffset = 500
	if err := c.SetFrequency(433e6, 0); err != nil {
		t.Errorf("Expected offset within tolerance to pass, got %v", err)
	}

	drv.frequencyOffset = 5e3
	err := c.SetFrequency(433e6, 0)

	var runtimeErr *driver.RuntimeError
	if !errors.As(err, &runtimeErr) || !strings.Contains(err.Error(), "requested frequency") {
		t.Errorf("Expected RuntimeError for tuning offset, got %v", err)
	}
}

func TestController_ClockSource(t *testing.T) {
	caps := testCapabilities
	caps.ClockSourceSelection = false

	c, _ := newInitializedController(t, caps)

	var configErr *driver.ConfigError
	if err := c.SetClockSource("external"); !errors.As(err, &configErr) {
		t.Errorf("Expected ConfigError, got %v", err)
	}

	c, drv := newInitializedController(t, testCapabilities)
	if err := c.SetClockSource("external"); err != nil {
		t.Errorf("Failed to set clock source: %v", err)
	}
	if drv.clockSource != "external" {
		t.Errorf("Expected external clock source, got %q", drv.clockSource)
	}

	if err := c.SyncClock(); err != nil {
		t.Fatalf("Failed to sync clock: %v", err)
	}
	if drv.timeNow == nil || *drv.timeNow != 0 {
		t.Error("Expected device time reset to zero")
	}
	if c.MasterClockRate() != 32e6 {
		t.Errorf("Expected 32 MHz master clock, got %g", c.MasterClockRate())
	}
}
