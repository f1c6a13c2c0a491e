package models

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. IDs sort lexicographically by creation time.
func NewID() string {
	return ulid.Make().String()
}
