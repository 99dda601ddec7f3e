// Package cursor implements opaque keyset-pagination cursors for listing
// endpoints. Cursors encode the ordering key of the last returned row, so
// concurrent inserts never skip or duplicate a page boundary the way
// offset pagination does.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the keyset position: the (published_at, id) pair of the last row
// of the previous page. ID breaks ties between posts published in the same
// instant.
type Cursor struct {
	PublishedAt time.Time `json:"p"`
	ID          string    `json:"i"`
}

// Encode returns the URL-safe opaque token for a cursor.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque token. An empty token yields (nil, nil): start
// from the beginning.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return &c, nil
}

// Query holds parsed cursor-pagination parameters.
type Query struct {
	Cursor *Cursor
	Limit  int
}

// FromContext extracts and validates cursor params from the request.
func FromContext(c *gin.Context) (Query, error) {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return Query{}, fmt.Errorf("invalid limit %q", raw)
		}
		limit = v
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	cur, err := Decode(c.Query("cursor"))
	if err != nil {
		return Query{}, err
	}
	return Query{Cursor: cur, Limit: limit}, nil
}
