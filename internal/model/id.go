package model

import "github.com/oklog/ulid/v2"

// NewRunID generates a new ULID string identifying one controller run.
func NewRunID() string {
	return ulid.Make().String()
}
