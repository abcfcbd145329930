package utils

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetPaginationDetails returns limit, offset and the 1-based page parsed from
// the request query.
func GetPaginationDetails(r *http.Request) (int, int, int) {
	limit := defaultPageSize
	if val, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && val > 0 {
		limit = val
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	page := 1
	if val, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && val > 0 {
		page = val
	}

	offset := (page - 1) * limit
	return limit, offset, page
}
