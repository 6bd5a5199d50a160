package githubstore

import "errors"

var (
	// ErrNotFound means the document does not exist yet. Callers treat it
	// as "create on first write", not as a failure.
	ErrNotFound = errors.New("document not found")

	// ErrConflict means the version token was stale: another writer updated
	// the document between read and write. Retriable.
	ErrConflict = errors.New("version conflict")

	// ErrUnauthorized means the credential is missing or rejected. Fatal,
	// never retried.
	ErrUnauthorized = errors.New("store credential rejected")

	// ErrNoCredential is returned at construction when no token is
	// configured. Persistence short-circuits without network calls.
	ErrNoCredential = errors.New("store credential missing")
)
