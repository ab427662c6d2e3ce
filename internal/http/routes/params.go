package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/xwell/ptgen/internal/route"
)

const maxBodyBytes = 1 << 20

// parseRequest merges the recognized parameters from a POST JSON body
// with the query string; the body wins for any field present in both.
// A malformed body is ignored rather than rejected, the query string
// alone may still describe a valid request.
func parseRequest(r *http.Request) route.Request {
	q := r.URL.Query()
	var body map[string]any
	if r.Method == http.MethodPost && r.Body != nil {
		ct := r.Header.Get("Content-Type")
		if ct == "" || strings.Contains(ct, "application/json") {
			_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body)
		}
	}

	pick := func(key string) string {
		switch v := body[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			// JSON numbers for id fields arrive as float64
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return q.Get(key)
	}

	return route.Request{
		URL:    pick("url"),
		Source: pick("source"),
		Query:  pick("query"),
		SID:    pick("sid"),
		TMDBID: pick("tmdb_id"),
		Type:   pick("type"),
	}
}
