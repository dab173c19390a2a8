package types

import "time"

// Migration describes a schema migration file on disk.
type Migration struct {
	// Path is the migration file path relative to the migrations directory.
	Path string `json:"path"`

	// Name is the human-readable part of the filename.
	Name string `json:"name"`

	// Timestamp is the version encoded in the filename prefix.
	Timestamp time.Time `json:"timestamp"`
}
