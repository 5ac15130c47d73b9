// Package utils holds the paging arithmetic shared by the list handlers and
// services.
package utils

import "strconv"

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Paginate normalizes a 1-based page and page size and returns the row
// offset. pageSize falls back to def when non-positive and is capped at max.
func Paginate(page, pageSize, def, max int) (p, size, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = def
	}
	if max > 0 && pageSize > max {
		pageSize = max
	}
	return page, pageSize, (page - 1) * pageSize
}
