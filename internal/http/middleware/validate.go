// Package middleware holds the request validation chain: malicious-pattern
// rejection, API-key auth, and rate limiting, applied in that order.
package middleware

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// maliciousPatterns are matched case-insensitively against the decoded
// path and the raw query. Anything here is rejected before auth runs.
var maliciousPatterns = []string{
	"..",
	"script:",
	"javascript:",
	"vbscript:",
	"<iframe",
	"<object",
	"<embed",
}

// RejectMalicious fails closed: a request target that cannot be parsed is
// treated the same as one matching a known-bad pattern.
func RejectMalicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, err := url.ParseRequestURI(r.RequestURI)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request / 无效请求")
			return
		}
		decoded, err := url.QueryUnescape(target.RawQuery)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request / 无效请求")
			return
		}
		haystack := strings.ToLower(target.Path + "?" + decoded)
		for _, p := range maliciousPatterns {
			if strings.Contains(haystack, p) {
				writeError(w, http.StatusBadRequest, "invalid request / 无效请求")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
