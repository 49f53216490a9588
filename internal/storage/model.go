package storage

import (
	"database/sql"
	"time"
)

type sessionData struct {
	ID         int64
	StartTime  time.Time
	DeviceType string
	Serial     string
	Config     sql.NullString
}

type spectrumData struct {
	SessionID       int64
	Timestamp       int64
	CenterFrequency float64
	SampleRate      float64
	FFTSize         int
	Window          string
	Averages        int
	Frequencies     []byte
	Magnitude       []byte
	PSD             []byte
}
