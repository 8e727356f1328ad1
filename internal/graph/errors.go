package graph

import "errors"

var (
	// ErrNotFound is returned when a referenced node or edge does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an id is already taken.
	ErrDuplicate = errors.New("duplicate id")
	// ErrInvalid is returned for malformed nodes or edges.
	ErrInvalid = errors.New("invalid")
)
