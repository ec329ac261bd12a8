// Package v1 implements the version 1 meme API.
package v1

import (
	"net/http"
	"strconv"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/infrastructure/api/middleware"
)

// ParsePagination reads skip (default 0) and limit (default 100) from the
// query string. Non-integer values and a negative skip are rejected; the
// query service clamps limit.
func ParsePagination(r *http.Request) (skip, limit int, err error) {
	skip, limit = 0, post.MaxPageSize
	q := r.URL.Query()

	if raw := q.Get("skip"); raw != "" {
		skip, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, middleware.BadRequest("skip must be an integer", err)
		}
		if skip < 0 {
			return 0, 0, middleware.BadRequest("skip must be greater than or equal to 0", nil)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, middleware.BadRequest("limit must be an integer", err)
		}
	}
	return skip, limit, nil
}
