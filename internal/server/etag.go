package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/echo/v4"
)

// computeETag returns a strong entity tag for a response body.
func computeETag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

// etagMatches reports whether an If-None-Match header matches etag. Weak
// validators compare equal to their strong form.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// writeJSONWithETag writes v with an ETag, or 304 when the client already
// holds the same body. It reports whether the body was sent.
func writeJSONWithETag(c echo.Context, v any) (bool, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	etag := computeETag(body)

	header := c.Response().Header()
	header.Set("ETag", etag)
	header.Set("Cache-Control", "no-cache")

	if etagMatches(c.Request().Header.Get("If-None-Match"), etag) {
		return false, c.NoContent(http.StatusNotModified)
	}
	return true, c.JSONBlob(http.StatusOK, body)
}
