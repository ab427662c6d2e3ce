package middleware

import (
	"net/http"
	"strings"
)

// InternalTokenHeader marks trusted internal traffic that skips key auth.
const InternalTokenHeader = "X-Internal-Token"

// KeyAuth enforces the deployment API key. The key may arrive as the
// "key" query parameter or as the leading path segment; the path form is
// rewritten away so routing below only ever sees "/".
type KeyAuth struct {
	APIKey        string
	InternalToken string

	// Docs is served to keyless browser GETs on the bare root instead of
	// a 401, so a human landing on the deployment sees usage notes.
	Docs http.Handler
}

func (a KeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if a.InternalToken != "" && r.Header.Get(InternalTokenHeader) == a.InternalToken {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Query().Get("key") == a.APIKey {
			next.ServeHTTP(w, r)
			return
		}
		if seg, rest := splitFirstSegment(r.URL.Path); seg == a.APIKey {
			r.URL.Path = rest
			next.ServeHTTP(w, r)
			return
		}
		if a.Docs != nil && r.Method == http.MethodGet && r.URL.Path == "/" &&
			len(r.URL.Query()) == 0 && strings.Contains(r.Header.Get("Accept"), "text/html") {
			a.Docs.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid or missing api key / 无效或缺失的密钥")
	})
}

// splitFirstSegment returns the first path segment and the remainder of
// the path (always starting with "/").
func splitFirstSegment(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", "/"
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i:]
	}
	return trimmed, "/"
}
