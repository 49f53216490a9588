package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath. Connections
// are opened on first use; the schema is created by the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, deviceType, serial string, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), deviceType, serial, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *spectrum.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	return querySession(ctx, db, id)
}

func querySession(ctx context.Context, db *sql.DB, id int64) (session *spectrum.Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data sessionData
	if err = stmt.QueryRowContext(ctx, id).Scan(&data.ID, &data.StartTime, &data.DeviceType, &data.Serial, &data.Config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return toSession(&data), nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*spectrum.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data sessionData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.DeviceType, &data.Serial, &data.Config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, toSession(&data))
	}

	err = rows.Err()
	return
}

func toSession(data *sessionData) *spectrum.Session {
	session := spectrum.Session{
		ID:         data.ID,
		StartTime:  data.StartTime,
		DeviceType: data.DeviceType,
		Serial:     data.Serial,
	}
	if data.Config.Valid {
		session.Config = &data.Config.String
	}
	return &session
}

func (s *SqliteStore) StoreSpectrum(ctx context.Context, sessionID int64, snapshot *spectrum.Snapshot) error {
	return s.StoreSpectra(ctx, sessionID, []*spectrum.Snapshot{snapshot})
}

func (s *SqliteStore) StoreSpectra(ctx context.Context, sessionID int64, spectra []*spectrum.Snapshot) (err error) {
	if len(spectra) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertSpectrumSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, snapshot := range spectra {
		data := toSpectrumData(sessionID, snapshot)
		if _, err = stmt.ExecContext(
			ctx,
			data.SessionID,
			data.Timestamp,
			data.CenterFrequency,
			data.SampleRate,
			data.FFTSize,
			data.Window,
			data.Averages,
			data.Frequencies,
			data.Magnitude,
			data.PSD,
		); err != nil {
			return fmt.Errorf("inserting spectrum: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func toSpectrumData(sessionID int64, s *spectrum.Snapshot) *spectrumData {
	return &spectrumData{
		SessionID:       sessionID,
		Timestamp:       s.Timestamp.UnixNano(),
		CenterFrequency: s.CenterFrequency,
		SampleRate:      s.SampleRate,
		FFTSize:         s.FFTSize,
		Window:          s.Window,
		Averages:        s.Averages,
		Frequencies:     encodeFloats(s.Frequencies),
		Magnitude:       encodeFloats(s.Magnitude),
		PSD:             encodeFloats(s.PSD),
	}
}

// ReadSpectra creates a new SpectrumReader over the spectra of a session, optionally
// limited to a time range (WithStartTime, WithEndTime, WithTimeRange).
//
// The returned SpectrumReader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
//
// Returns error if reader creation fails or session doesn't exist.
func (s *SqliteStore) ReadSpectra(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SpectrumReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSpectrumReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
