// Package pagination encodes opaque continuation tokens and parses page sizes.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
)

// ErrInvalidToken is returned for tokens that do not decode to a cursor.
var ErrInvalidToken = errors.New("invalid nextToken")

// Encode serializes a cursor into a URL-safe base64 token.
func Encode(cursor interface{}) (string, error) {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a token produced by Encode into cursor.
func Decode(token string, cursor interface{}) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(raw, cursor); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// Limit parses a page size. Missing or non-positive values give def; values above max are capped.
func Limit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
