package app

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/render"
	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
	"github.com/roman-kulish/spectrum-analyzer/internal/storage"
)

var nilLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewConfigFromCLI(t *testing.T) {
	args := []string{
		"-db", "spectra.db",
		"-s", "3",
		"-o", "out/heatmap",
		"-f", "JPG",
		"-theme", "thermal",
		"-field", "magnitude",
		"-tz", "UTC",
		"-start", "2026-01-02 10:00:00",
		"-end", "2026-01-02 11:30:00",
		"-min-power", "-110.5",
		"-no-annotations",
	}

	config, err := NewConfigFromCLI(args, io.Discard)
	if err != nil {
		t.Fatalf("Failed to parse command line: %v", err)
	}

	if config.DBPath != "spectra.db" || config.SessionID != 3 {
		t.Errorf("Unexpected source: %s, session %d", config.DBPath, config.SessionID)
	}
	if config.OutputFile != "out/heatmap.jpeg" || config.Format != render.ImageJPEG {
		t.Errorf("Unexpected output: %s, %s", config.OutputFile, config.Format)
	}
	if config.Theme != render.ThermalTheme || config.Field != FieldMagnitude {
		t.Errorf("Unexpected theme or field: %s, %s", config.Theme, config.Field)
	}

	wantStart := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if config.StartTime == nil || !config.StartTime.Equal(wantStart) {
		t.Errorf("Expected start time %s, got %v", wantStart, config.StartTime)
	}
	if config.EndTime == nil || !config.EndTime.Equal(wantStart.Add(90*time.Minute)) {
		t.Errorf("Unexpected end time: %v", config.EndTime)
	}

	if config.MinPower == nil || *config.MinPower != -110.5 {
		t.Errorf("Expected min power -110.5, got %v", config.MinPower)
	}
	if config.MaxPower != nil {
		t.Errorf("Expected no max power, got %f", *config.MaxPower)
	}
	if !config.NoAnnotations {
		t.Error("Expected annotations to be disabled")
	}
}

func TestNewConfigFromCLI_Errors(t *testing.T) {
	if _, err := NewConfigFromCLI([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("Expected flag.ErrHelp, got %v", err)
	}

	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"db", []string{"-o", "x"}, "db path is required"},
		{"session", []string{"-db", "x.db", "-s", "0", "-o", "x"}, "session id is required"},
		{"output", []string{"-db", "x.db"}, "output file is required"},
		{"format", []string{"-db", "x.db", "-o", "x", "-f", "gif"}, "invalid image format"},
		{"theme", []string{"-db", "x.db", "-o", "x", "-theme", "sepia"}, "unknown color theme"},
		{"field", []string{"-db", "x.db", "-o", "x", "-field", "phase"}, "invalid field"},
		{"timezone", []string{"-db", "x.db", "-o", "x", "-tz", "Mars/Olympus"}, "invalid timezone"},
		{"start", []string{"-db", "x.db", "-o", "x", "-start", "yesterday"}, "invalid start time"},
		{"range", []string{"-db", "x.db", "-o", "x", "-tz", "UTC", "-start", "2026-01-02 10:00:00", "-end", "2026-01-02 09:00:00"}, "end time must be after"},
		{"power", []string{"-db", "x.db", "-o", "x", "-min-power", "-20", "-max-power", "-80"}, "max power must be greater"},
		{"power format", []string{"-db", "x.db", "-o", "x", "-min-power", "low"}, "min-power"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfigFromCLI(tc.args, io.Discard)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNewConfigFromCLI_ListSessions(t *testing.T) {
	config, err := NewConfigFromCLI([]string{"-db", "x.db", "-list"}, io.Discard)
	if err != nil {
		t.Fatalf("Failed to parse command line: %v", err)
	}
	if !config.ListSessions || config.OutputFile != "" {
		t.Errorf("Unexpected config: %+v", config)
	}
}

// newTestStore creates a database with one session of rows spectra, one per second.
func newTestStore(t *testing.T, rows int, start time.Time) (string, int64) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spectra.db")
	store := storage.NewSqliteStore(path)
	defer store.Close()

	ctx := context.Background()
	id, err := store.CreateSession(ctx, "simulation", "SIM-001", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	spectra := make([]*spectrum.Snapshot, rows)
	for i := range spectra {
		s := &spectrum.Snapshot{
			Timestamp:       start.Add(time.Duration(i) * time.Second),
			CenterFrequency: 100e6,
			SampleRate:      1e6,
			FFTSize:         8,
			Window:          "hamming",
			Averages:        4,
			Frequencies:     make([]float64, 5),
			Magnitude:       make([]float64, 5),
			PSD:             make([]float64, 5),
		}
		for k := range s.Frequencies {
			s.Frequencies[k] = 100e6 + float64(k)*125e3
			s.Magnitude[k] = -60 + float64(k)
			s.PSD[k] = -120 + float64(i)
		}
		spectra[i] = s
	}

	if err = store.StoreSpectra(ctx, id, spectra); err != nil {
		t.Fatalf("Failed to store spectra: %v", err)
	}
	return path, id
}

func TestRun(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	dbPath, id := newTestStore(t, 10, start)

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = id
	config.OutputFile = filepath.Join(t.TempDir(), "heatmap.png")
	config.TimeZone = time.UTC

	if err := Run(context.Background(), config, io.Discard, nilLogger); err != nil {
		t.Fatalf("Failed to run: %v", err)
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("Failed to open image: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode image: %v", err)
	}

	// 5 bins by 10 rows inside the default borders
	if b := img.Bounds(); b.Dx() != 5+100+40 || b.Dy() != 10+40+40 {
		t.Errorf("Unexpected image size: %v", b)
	}
}

func TestReadSpectra(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	dbPath, id := newTestStore(t, 10, start)

	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	startTime, endTime := start.Add(2*time.Second), start.Add(5*time.Second)

	testCases := []struct {
		name       string
		config     Config
		wantHeight int
		wantFirst  float64
	}{
		{
			name:       "all psd",
			config:     Config{SessionID: id, Field: FieldPSD},
			wantHeight: 10,
			wantFirst:  -120,
		},
		{
			name:       "magnitude",
			config:     Config{SessionID: id, Field: FieldMagnitude},
			wantHeight: 10,
			wantFirst:  -60,
		},
		{
			name:       "time range",
			config:     Config{SessionID: id, Field: FieldPSD, StartTime: &startTime, EndTime: &endTime},
			wantHeight: 4,
			wantFirst:  -118,
		},
		{
			name:       "start time",
			config:     Config{SessionID: id, Field: FieldPSD, StartTime: &endTime},
			wantHeight: 5,
			wantFirst:  -115,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := readSpectra(context.Background(), store, &tc.config, nilLogger)
			if err != nil {
				t.Fatalf("Failed to read spectra: %v", err)
			}

			if w.Height != tc.wantHeight || w.Width != 5 {
				t.Fatalf("Expected %d rows of 5, got %d rows of %d", tc.wantHeight, w.Height, w.Width)
			}
			if w.Rows[0][0] != tc.wantFirst {
				t.Errorf("Expected first level %f, got %f", tc.wantFirst, w.Rows[0][0])
			}
			if w.FrequencyMin != 100e6 || w.FrequencyMax != 100.5e6 {
				t.Errorf("Unexpected frequency range: %f - %f", w.FrequencyMin, w.FrequencyMax)
			}
		})
	}

	late := start.Add(time.Hour)
	config := Config{SessionID: id, Field: FieldPSD, StartTime: &late}
	if _, err := readSpectra(context.Background(), store, &config, nilLogger); !errors.Is(err, ErrNoSpectra) {
		t.Errorf("Expected ErrNoSpectra, got %v", err)
	}
}

func TestRun_ListSessions(t *testing.T) {
	dbPath, _ := newTestStore(t, 1, time.Now())

	config := NewConfig()
	config.DBPath = dbPath
	config.ListSessions = true

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, nilLogger); err != nil {
		t.Fatalf("Failed to run: %v", err)
	}

	for _, want := range []string{"ID", "simulation", "SIM-001"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "missing.db")

	if err := Run(context.Background(), config, io.Discard, nilLogger); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}
