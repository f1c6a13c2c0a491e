package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
)

// ErrMalformed is returned when the request body is not valid JSON.
var ErrMalformed = errors.New("invalid JSON in request body")

// BindJSON decodes the request body into dst. An empty body decodes as {}.
func BindJSON(c *gin.Context, dst interface{}) error {
	raw, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ErrMalformed
	}
	return nil
}
