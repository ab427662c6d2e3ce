package cache

import "strings"

// Key names one cacheable resource: source, optional sub-namespace (the
// TMDB movie/tv split), and the source-specific id. Both tier keys are
// joined with separators outside every source's id alphabet, so a key
// normalizes uniquely per source.
type Key struct {
	Source    string
	Namespace string
	SID       string
}

// Object returns the fast-tier key in Redis convention:
// "ptgen:record:<source>[:<namespace>]:<sid>".
func (k Key) Object() string {
	parts := []string{"ptgen", "record", k.Source}
	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}
	parts = append(parts, k.SID)
	return strings.Join(parts, ":")
}

// Row returns the durable-tier key: "<source>[/<namespace>]/<sid>".
// Composite sids like TMDB's "movie/603" arrive already split into
// Namespace + SID, so the join stays deterministic.
func (k Key) Row() string {
	parts := []string{k.Source}
	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}
	parts = append(parts, k.SID)
	return strings.Join(parts, "/")
}
