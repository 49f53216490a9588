package app

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/sdr"
	"github.com/roman-kulish/spectrum-analyzer/internal/sdr/sim"
	"github.com/roman-kulish/spectrum-analyzer/internal/storage"
)

var nilLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestListDevices(t *testing.T) {
	r := sdr.NewRegistry()
	if err := sim.Register(r); err != nil {
		t.Fatalf("Failed to register simulator: %v", err)
	}

	var out bytes.Buffer
	if err := ListDevices(r, &out); err != nil {
		t.Fatalf("Failed to list devices: %v", err)
	}

	got := out.String()
	for _, want := range []string{"sim, simulation", "TYPE", sim.DeviceType, sim.Serial, "100 MHz"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, got)
		}
	}

	// the alias resolves to the same device
	if n := strings.Count(got, sim.Serial); n != 1 {
		t.Errorf("Expected the simulator to be listed once, got %d", n)
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(NewConfig(), nilLogger)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	for _, name := range []string{"simulation", "sim", "rtlsdr", "hackrf", "usrp"} {
		if !r.IsSupported(name) {
			t.Errorf("Expected %s to be supported", name)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()

	config := testConfig()
	config.Settings.UpdateInterval = TimeDuration(10 * time.Millisecond)
	config.Settings.Duration = TimeDuration(600 * time.Millisecond)
	config.Display.OutputDir = filepath.Join(dir, "images")
	config.Display.RenderInterval = TimeDuration(100 * time.Millisecond)
	config.Storage.DBPath = filepath.Join(dir, "spectra.db")
	config.Storage.BatchSize = 2
	if err := config.Validate(); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}

	if err := Run(context.Background(), config, nilLogger); err != nil {
		t.Fatalf("Failed to run: %v", err)
	}

	for _, name := range []string{waterfallFile, slabFile} {
		f, err := os.Open(filepath.Join(config.Display.OutputDir, name))
		if err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}

		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("Failed to decode %s: %v", name, err)
		}
		if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
			t.Errorf("Expected a non-empty %s, got %v", name, b)
		}
	}

	store := storage.NewSqliteStore(config.Storage.DBPath)
	defer store.Close()

	ctx := context.Background()
	sessions, err := store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to read sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if sessions[0].DeviceType != sim.DeviceType || sessions[0].Serial != sim.Serial {
		t.Errorf("Unexpected session: %+v", sessions[0])
	}

	reader, err := store.ReadSpectra(ctx, sessions[0].ID)
	if err != nil {
		t.Fatalf("Failed to read spectra: %v", err)
	}
	defer reader.Close()

	var count int
	for reader.Next(ctx) {
		s := reader.Current()
		if s.FFTSize != testFFTSize || len(s.PSD) != testFFTSize/2+1 {
			t.Errorf("Unexpected stored spectrum: fft %d, %d PSD bins", s.FFTSize, len(s.PSD))
		}
		count++
	}
	if err = reader.Err(); err != nil {
		t.Fatalf("Failed to iterate spectra: %v", err)
	}
	if count == 0 {
		t.Error("Expected stored spectra")
	}
}

func TestRun_UnknownDevice(t *testing.T) {
	config := NewConfig()
	config.Device.DeviceType = "airspy"

	if err := Run(context.Background(), config, nilLogger); err == nil {
		t.Error("Expected error for an unknown device type")
	}
}

func TestRun_Cancelled(t *testing.T) {
	config := testConfig()
	config.Device.DeviceType = "sim"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- Run(ctx, config, nilLogger) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
