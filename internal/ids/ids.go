// Package ids generates identifiers for graph entities.
package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewNodeID returns a fresh node id.
func NewNodeID() string {
	return NewUUIDv7().String()
}

// NewEdgeID returns a fresh edge id.
func NewEdgeID() string {
	return "e-" + NewUUIDv7().String()
}

// NewMessageID returns a ULID. ULIDs sort lexicographically by creation
// time, which keeps per-node message order stable.
func NewMessageID() string {
	return ulid.Make().String()
}
