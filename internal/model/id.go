package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for frame records and session identifiers.
func NewID() string {
	return ulid.Make().String()
}
