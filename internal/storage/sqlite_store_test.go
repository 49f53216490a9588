package storage

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "spectra.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func testSnapshot(ts time.Time, level float64) *spectrum.Snapshot {
	return &spectrum.Snapshot{
		Timestamp:       ts,
		CenterFrequency: 100e6,
		SampleRate:      1e6,
		FFTSize:         4,
		Window:          "hanning",
		Averages:        10,
		Frequencies:     []float64{-500e3, -250e3, 0, 250e3},
		Magnitude:       []float64{-80, level, -3.5, -60},
		PSD:             []float64{-140, -101.25, -120, -130},
	}
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := map[string]any{"frequency": 100e6, "gain": 20}

	first, err := s.CreateSession(ctx, "simulation", "SIM-001", config)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	second, err := s.CreateSession(ctx, "usrp", "32C1EC6", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	session, err := s.Session(ctx, first)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if session.DeviceType != "simulation" || session.Serial != "SIM-001" {
		t.Errorf("Unexpected session: %+v", session)
	}
	if session.Config == nil || *session.Config != `{"frequency":100000000,"gain":20}` {
		t.Errorf("Unexpected config: %v", session.Config)
	}
	if time.Since(session.StartTime) > time.Minute {
		t.Errorf("Unexpected start time: %s", session.StartTime)
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != first || sessions[1].ID != second {
		t.Fatalf("Expected sessions %d and %d, got %d", first, second, len(sessions))
	}
	if sessions[1].Config != nil {
		t.Error("Expected nil config for the second session")
	}

	if _, err = s.Session(ctx, second+100); err == nil {
		t.Error("Expected error for an unknown session")
	}
}

func TestSqliteStore_Spectra(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sessionID, err := s.CreateSession(ctx, "simulation", "SIM-001", "freq=100M")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var stored []*spectrum.Snapshot
	for i := range 5 {
		stored = append(stored, testSnapshot(start.Add(time.Duration(i)*time.Second), float64(-i)))
	}

	if err = s.StoreSpectra(ctx, sessionID, stored[:4]); err != nil {
		t.Fatalf("Failed to store spectra: %v", err)
	}

	noPSD := stored[4]
	noPSD.PSD = nil
	if err = s.StoreSpectrum(ctx, sessionID, noPSD); err != nil {
		t.Fatalf("Failed to store spectrum: %v", err)
	}

	t.Run("all", func(t *testing.T) {
		r, err := s.ReadSpectra(ctx, sessionID)
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		defer r.Close()

		if r.Session().ID != sessionID || *r.Session().Config != "freq=100M" {
			t.Errorf("Unexpected session: %+v", r.Session())
		}

		var got []*spectrum.Snapshot
		for r.Next(ctx) {
			got = append(got, r.Current())
		}
		if err = r.Err(); err != nil {
			t.Fatalf("Failed to read spectra: %v", err)
		}

		if len(got) != len(stored) {
			t.Fatalf("Expected %d spectra, got %d", len(stored), len(got))
		}
		for i, want := range stored {
			if !got[i].Timestamp.Equal(want.Timestamp) {
				t.Errorf("Spectrum %d: expected timestamp %s, got %s", i, want.Timestamp, got[i].Timestamp)
			}
			if !slices.Equal(got[i].Magnitude, want.Magnitude) || !slices.Equal(got[i].Frequencies, want.Frequencies) {
				t.Errorf("Spectrum %d: vectors differ", i)
			}
			if !slices.Equal(got[i].PSD, want.PSD) {
				t.Errorf("Spectrum %d: expected PSD %v, got %v", i, want.PSD, got[i].PSD)
			}
			if got[i].FFTSize != 4 || got[i].Window != "hanning" || got[i].Averages != 10 || got[i].SampleRate != 1e6 {
				t.Errorf("Spectrum %d: unexpected parameters %+v", i, got[i])
			}
		}
	})

	t.Run("time range", func(t *testing.T) {
		r, err := s.ReadSpectra(ctx, sessionID, WithTimeRange(start.Add(time.Second), start.Add(3*time.Second)))
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		defer r.Close()

		var levels []float64
		for r.Next(ctx) {
			levels = append(levels, r.Current().Magnitude[1])
		}
		if err = r.Err(); err != nil {
			t.Fatalf("Failed to read spectra: %v", err)
		}
		if !slices.Equal(levels, []float64{-1, -2, -3}) {
			t.Errorf("Expected levels [-1 -2 -3], got %v", levels)
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		if _, err := s.ReadSpectra(ctx, sessionID, WithStartTime(start.Add(time.Hour)), WithEndTime(start)); err == nil {
			t.Error("Expected error for inverted time range")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		r, err := s.ReadSpectra(ctx, sessionID)
		if err != nil {
			t.Fatalf("Failed to create reader: %v", err)
		}
		defer r.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		if r.Next(cancelled) {
			t.Error("Expected Next to stop on a cancelled context")
		}
		if r.Err() == nil {
			t.Error("Expected context error")
		}
	})
}

func TestSqliteStore_UnknownSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.StoreSpectrum(ctx, 42, testSnapshot(time.Now(), -1)); err == nil {
		t.Error("Expected foreign key violation for an unknown session")
	}
}
