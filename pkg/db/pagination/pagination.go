// Package pagination implements opaque cursor paging over created_at/id
// ordered listings.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 250
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Limit clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// Cursor marks the last row of a page. Both fields participate in the
// keyset predicate so rows sharing a created_at are not skipped.
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(cursor Cursor) (string, error) {
	b, err := json.Marshal(cursor)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// BuildCursorPageInfo trims a limit+1 result set down to the page and
// reports whether more rows follow. extractCursor encodes the last row
// of the trimmed page into the next page token.
func BuildCursorPageInfo[T any](items []T, limit int, extractCursor func(T) string) ([]T, *PageInfo) {
	if len(items) == 0 {
		return items, &PageInfo{}
	}

	hasMore := false
	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}

	return items, &PageInfo{
		HasMore:       hasMore,
		NextPageToken: extractCursor(items[len(items)-1]),
	}
}
