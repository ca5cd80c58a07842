package httputil

import (
	"fmt"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100
)

// ParsePagination parses page and per_page query parameters, applying
// defaults for absent values. Page values below 1 are clamped; per_page is
// bounded to keep list responses small.
func ParsePagination(pageStr, perPageStr string) (page, perPage int, err error) {
	page, perPage = defaultPage, defaultPerPage

	if pageStr != "" {
		page, err = strconv.Atoi(pageStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid page parameter: must be an integer")
		}
		if page < 1 {
			page = 1
		}
	}

	if perPageStr != "" {
		perPage, err = strconv.Atoi(perPageStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid per_page parameter: must be an integer")
		}
		if perPage < 1 || perPage > maxPerPage {
			return 0, 0, fmt.Errorf("per_page must be between 1 and %d", maxPerPage)
		}
	}

	return page, perPage, nil
}
