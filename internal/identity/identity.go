package identity

import "github.com/google/uuid"

// NewParticipantID returns a fresh opaque participant identifier.
// Identity is anonymous by design; callers that already hold an id
// (e.g. from a reconnecting client) should reuse it instead.
func NewParticipantID() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a participant identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
