package utils

import "strconv"

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ParsePagination turns query string page params into a clamped
// offset/limit pair. Bad input falls back to the first page.
func ParsePagination(pageStr, sizeStr string) (offset, limit int) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return (page - 1) * size, size
}

// PageSlice bounds-checks a window over an already ordered slice.
func PageSlice[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
