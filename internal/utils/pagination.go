// Package utils holds small helpers shared by the HTTP and service layers.
// Nothing here knows about feedback records.
package utils

import (
	"strconv"
	"strings"
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a number. Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParsePage reads page/page_size query values and bounds them with Clamp.
func ParsePage(page, size string, defSize, maxSize int) Page {
	return Page{
		Number: AtoiDefault(strings.TrimSpace(page), 1),
		Size:   AtoiDefault(strings.TrimSpace(size), defSize),
	}.Clamp(defSize, maxSize)
}

// Clamp forces Number >= 1 and 1 <= Size <= maxSize. A zero or negative
// Size becomes defSize; maxSize <= 0 leaves the upper bound open.
func (p Page) Clamp(defSize, maxSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defSize
	}
	if p.Size < 1 {
		p.Size = 1
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset is the number of rows preceding the page.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// TotalPages is ceil(total/size), or 0 when there is nothing to page.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
