// Package snapshot persists whole-file snapshots of the knowledge
// graph and the embedding index.
//
// Two formats exist per structure, selected by file extension:
//
//   - .json: a structured document with ISO-8601 timestamps. For the
//     embedding index this format does NOT carry the fitted vocabulary;
//     after loading a .json embedding snapshot, relatedness lookups
//     work but query projection requires a fresh Fit.
//   - .db: a SQLite database holding entities, relationships, vectors,
//     cached texts, and the fitted vocabulary with idf weights. Loading
//     it restores a fully working index.
//
// Any other extension is rejected with ErrUnsupportedFormat. These are
// snapshots, not streams: save writes the whole state, load replaces it.
package snapshot

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrUnsupportedFormat indicates a file extension no codec handles.
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")

	// ErrMalformedSnapshot indicates structural fields are missing or
	// unreadable on load.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// format constants selected by extension.
const (
	formatJSON   = ".json"
	formatSQLite = ".db"
)

// timeLayout is the timestamp convention for JSON snapshots. RFC 3339
// with sub-second precision is the ISO-8601 profile encoding/json uses
// for time.Time, so round-trips preserve second-or-finer resolution.
const timeLayout = time.RFC3339Nano

// extensionOf returns the lowercased file extension.
func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
