// Package pagination implements the opaque cursor the admin API hands out
// when paging through resolved payment operations, newest first.
//
// A cursor pins the position by (resolved_at, invoice_id), so pages stay
// stable while new resolutions keep arriving at the head of the list.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadCursor indicates a cursor string that Encode never produced.
var ErrBadCursor = errors.New("pagination: malformed cursor")

// Cursor is a decoded page position.
type Cursor struct {
	ResolvedAt time.Time
	InvoiceID  string
}

// Encode packs a page position into an opaque URL-safe string.
func Encode(resolvedAt time.Time, invoiceID string) string {
	raw := fmt.Sprintf("%s|%d", invoiceID, resolvedAt.UnixNano())
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor produced by Encode. The empty string decodes to
// nil, meaning "start from the newest".
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadCursor
	}
	sep := strings.LastIndexByte(string(raw), '|')
	if sep < 0 {
		return nil, ErrBadCursor
	}
	nanos, err := strconv.ParseInt(string(raw[sep+1:]), 10, 64)
	if err != nil {
		return nil, ErrBadCursor
	}
	return &Cursor{
		ResolvedAt: time.Unix(0, nanos).UTC(),
		InvoiceID:  string(raw[:sep]),
	}, nil
}

// Page trims a fetch of limit+1 rows down to one page. It returns the page,
// the cursor for the next page and whether more rows exist; key extracts
// the page position from a row.
func Page[T any](rows []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(rows) <= limit {
		return rows, "", false
	}
	rows = rows[:limit]
	resolvedAt, invoiceID := key(rows[len(rows)-1])
	return rows, Encode(resolvedAt, invoiceID), true
}
