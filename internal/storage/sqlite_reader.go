package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

// ReaderOption configures a SpectrumReader with specific filtering criteria.
type ReaderOption func(*SpectrumReader)

// WithStartTime excludes spectra captured before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SpectrumReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes spectra captured after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SpectrumReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SpectrumReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// SpectrumReader iterates over the stored spectra of one session in timestamp order.
//
//	for r.Next(ctx) {
//		s := r.Current()
//	}
//	if err := r.Err(); err != nil { ... }
type SpectrumReader struct {
	db        *sql.DB
	sessionID int64
	session   *spectrum.Session

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *spectrum.Snapshot
	rows    *sql.Rows
	err     error
}

func newSpectrumReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SpectrumReader, error) {
	sr := &SpectrumReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(sr)
	}
	if err := sr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return sr, nil
}

func (sr *SpectrumReader) init(ctx context.Context) error {
	if sr.db == nil {
		return errors.New("database connection required")
	}
	if sr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if sr.startTime != nil && sr.endTime != nil && sr.startTime.After(*sr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", sr.startTime, sr.endTime)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: sr.loadSession},
		{msg: "initializing query", fn: sr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (sr *SpectrumReader) loadSession(ctx context.Context) (err error) {
	sr.session, err = querySession(ctx, sr.db, sr.sessionID)
	return
}

func (sr *SpectrumReader) initQuery(ctx context.Context) (err error) {
	var start, end int64 = math.MinInt64, math.MaxInt64
	if sr.startTime != nil {
		start = sr.startTime.UnixNano()
	}
	if sr.endTime != nil {
		end = sr.endTime.UnixNano()
	}

	sr.rows, err = sr.db.QueryContext(ctx, selectSpectraSQL, sr.sessionID, start, end)
	return
}

// Session returns the session this reader is accessing.
func (sr *SpectrumReader) Session() *spectrum.Session {
	return sr.session
}

// Next advances to the next spectrum. It returns false at the end of the data or
// on error; Err distinguishes the two.
func (sr *SpectrumReader) Next(ctx context.Context) bool {
	if sr.err != nil || sr.rows == nil {
		return false
	}

	if err := ctx.Err(); err != nil {
		sr.err = err
		return false
	}

	if !sr.rows.Next() {
		sr.current = nil
		return false
	}

	var data spectrumData
	if sr.err = sr.rows.Scan(
		&data.Timestamp,
		&data.CenterFrequency,
		&data.SampleRate,
		&data.FFTSize,
		&data.Window,
		&data.Averages,
		&data.Frequencies,
		&data.Magnitude,
		&data.PSD,
	); sr.err != nil {
		sr.err = fmt.Errorf("scanning spectrum: %w", sr.err)
		return false
	}

	sr.current, sr.err = toSnapshot(&data)
	return sr.err == nil
}

func toSnapshot(data *spectrumData) (*spectrum.Snapshot, error) {
	s := spectrum.Snapshot{
		Timestamp:       time.Unix(0, data.Timestamp).UTC(),
		CenterFrequency: data.CenterFrequency,
		SampleRate:      data.SampleRate,
		FFTSize:         data.FFTSize,
		Window:          data.Window,
		Averages:        data.Averages,
	}

	var err error
	if s.Frequencies, err = decodeFloats(data.Frequencies); err != nil {
		return nil, fmt.Errorf("decoding frequencies: %w", err)
	}
	if s.Magnitude, err = decodeFloats(data.Magnitude); err != nil {
		return nil, fmt.Errorf("decoding magnitude: %w", err)
	}
	if s.PSD, err = decodeFloats(data.PSD); err != nil {
		return nil, fmt.Errorf("decoding psd: %w", err)
	}
	return &s, nil
}

// Current returns the spectrum read by the last successful Next.
func (sr *SpectrumReader) Current() *spectrum.Snapshot {
	return sr.current
}

// Err returns the error that stopped the iteration, nil at the end of the data.
func (sr *SpectrumReader) Err() error {
	if sr.err != nil {
		return sr.err
	}
	if sr.rows != nil {
		return sr.rows.Err()
	}
	return nil
}

func (sr *SpectrumReader) Close() error {
	if sr.rows != nil {
		err := sr.rows.Close()
		sr.current = nil
		sr.rows = nil
		return err
	}
	return nil
}
