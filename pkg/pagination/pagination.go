// Package pagination implements newest-first keyset paging over (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Params is what a caller asks for: a page size and the token from the previous page.
type Params struct {
	Limit  int
	Cursor string
}

// Keyset is the position of the last row already returned.
type Keyset struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Size clamps the requested limit into [1, MaxLimit], defaulting when unset.
func (p Params) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Keyset decodes the cursor token. An empty token means the first page.
func (p Params) Keyset() (*Keyset, error) {
	token := strings.TrimSpace(p.Cursor)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	var k Keyset
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}
	if k.ID == uuid.Nil || k.CreatedAt.IsZero() {
		return nil, fmt.Errorf("cursor is missing its position")
	}
	return &k, nil
}

// Token encodes the keyset so it can travel in a query string unescaped.
func (k Keyset) Token() string {
	raw, _ := json.Marshal(Keyset{CreatedAt: k.CreatedAt.UTC(), ID: k.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Trim cuts rows fetched with size+1 down to size and returns the next-page
// token, empty when this was the last page.
func Trim[T any](rows []T, size int, key func(T) Keyset) ([]T, string) {
	if len(rows) <= size {
		return rows, ""
	}
	page := rows[:size]
	return page, key(page[size-1]).Token()
}
