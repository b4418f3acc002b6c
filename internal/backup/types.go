// Package backup takes consistent point-in-time copies of the SQLite
// entity database, verifies them and prunes old ones.
package backup

import "time"

// Info describes one backup file.
type Info struct {
	// Path is the full path to the backup file
	Path string

	// Timestamp is when the backup was taken, parsed from the file name
	Timestamp time.Time

	// Size is the backup file size in bytes
	Size int64
}

// Result is returned by Snapshot.
type Result struct {
	Info

	// Duration is how long the backup took
	Duration time.Duration
}
