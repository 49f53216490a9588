package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions
(
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time  DATETIME NOT NULL,
    device_type TEXT     NOT NULL,
    serial      TEXT     NOT NULL,
    config      TEXT
);

CREATE TABLE IF NOT EXISTS spectra
(
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id       INTEGER NOT NULL REFERENCES sessions (id),
    timestamp        INTEGER NOT NULL, -- unix nanoseconds
    center_frequency REAL    NOT NULL,
    sample_rate      REAL    NOT NULL,
    fft_size         INTEGER NOT NULL,
    window           TEXT    NOT NULL,
    averages         INTEGER NOT NULL,
    frequencies      BLOB    NOT NULL, -- little-endian float64
    magnitude        BLOB    NOT NULL,
    psd              BLOB
);`

	// indexes are built on close so that inserts during acquisition stay cheap
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_spectra_session_time ON spectra (session_id, timestamp);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_type,
                      serial,
                      config)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    start_time, 
    device_type, 
    serial, 
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    start_time, 
    device_type, 
    serial, 
    config 
FROM sessions
ORDER BY start_time, id`

	insertSpectrumSQL = `
INSERT INTO spectra (session_id,
                     timestamp,
                     center_frequency,
                     sample_rate,
                     fft_size,
                     window,
                     averages,
                     frequencies,
                     magnitude,
                     psd)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSpectraSQL = `
SELECT 
    timestamp, 
    center_frequency, 
    sample_rate, 
    fft_size, 
    window, 
    averages, 
    frequencies, 
    magnitude, 
    psd
FROM spectra
WHERE 
    session_id = ?
    AND timestamp BETWEEN ? AND ?
ORDER BY timestamp, id`
)
