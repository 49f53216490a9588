package storage

import (
	"context"

	"github.com/roman-kulish/spectrum-analyzer/internal/spectrum"
)

// Store provides an interface for persisting acquisition sessions and the averaged
// spectra produced during them. All write operations are atomic.
type Store interface {
	// CreateSession initializes a new acquisition session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - deviceType: Registry name of the device (e.g., "simulation", "usrp")
	//   - serial: Serial number of the device, may be empty
	//   - config: Optional device configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, deviceType, serial string, config any) (sessionID int64, err error)

	// Session retrieves a specific session by its ID.
	Session(ctx context.Context, id int64) (*spectrum.Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*spectrum.Session, error)

	// StoreSpectrum saves one averaged spectrum of a session.
	StoreSpectrum(ctx context.Context, sessionID int64, s *spectrum.Snapshot) error

	// StoreSpectra saves a batch of spectra in a single transaction.
	StoreSpectra(ctx context.Context, sessionID int64, spectra []*spectrum.Snapshot) error

	// ReadSpectra returns a reader over the spectra of a session in timestamp order.
	// The returned reader must be closed after use.
	ReadSpectra(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SpectrumReader, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}
