package uuidx

import "github.com/google/uuid"

// New generates a version 7 UUID. Version 7 ids sort by creation time, which keeps
// preparation ids and client ids ordered in logs and caches.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a version 7 UUID and returns its string form.
func NewString() string {
	return New().String()
}

// Parse parses a UUID string, rejecting anything that is not version 7.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if id.Version() != 7 {
		return uuid.Nil, ErrNotV7
	}
	return id, nil
}

// ErrNotV7 is returned by Parse for UUIDs of another version.
var ErrNotV7 = uuidError("uuid is not version 7")

type uuidError string

func (e uuidError) Error() string { return string(e) }
