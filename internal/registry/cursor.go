package registry

import (
	"encoding/base64"
	"sort"
)

// encodeCursor builds an opaque pagination cursor from the last key of the
// previous page. Callers only ever see the base64 form; the sort key itself
// is never a contract with the peer.
func encodeCursor(lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastKey))
}

// decodeCursor recovers the sort key a cursor was built from.
func decodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}
	return string(b), nil
}

// paginate returns the page of keys starting just after cursor, up to
// pageSize entries, plus the cursor for the next page ("" if this was the
// last page). keys is sorted in place.
func paginate(keys []string, cursor string, pageSize int) ([]string, string, error) {
	sort.Strings(keys)

	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if after != "" {
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}
	if start >= len(keys) {
		return nil, "", nil
	}

	end := start + pageSize
	if pageSize <= 0 || end > len(keys) {
		end = len(keys)
	}

	page := keys[start:end]
	next := ""
	if end < len(keys) {
		next = encodeCursor(page[len(page)-1])
	}
	return page, next, nil
}

// defaultPageSize bounds a single */list response when the caller requests
// no explicit page size.
const defaultPageSize = 50
