// Package mediainfo defines the normalized record exchanged between
// providers, the cache, and the HTTP surface, plus the gateway's error
// taxonomy.
package mediainfo

import (
	"encoding/json"
	"fmt"
)

// Record is the normalized description of one media item. Providers fill
// Fields with source-specific keys (title, year, rating, images, credits)
// and set Success; Format holds the rendered description and is never
// persisted (it is regenerated from Fields on every read, so rendering
// changes apply retroactively without touching the cache).
type Record struct {
	Site    string
	SID     string
	Success bool
	Error   string
	Format  string
	Fields  map[string]any
}

// New returns an empty successful record for the given resource.
func New(site, sid string) *Record {
	return &Record{
		Site:    site,
		SID:     sid,
		Success: true,
		Fields:  make(map[string]any),
	}
}

// Fail returns a failed record carrying the error message.
func Fail(site, sid, msg string) *Record {
	return &Record{Site: site, SID: sid, Success: false, Error: msg}
}

// Set stores a field value, allocating the map on first use.
func (r *Record) Set(key string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[key] = value
}

// Str returns the named field as a string, or "" if absent or not a string.
func (r *Record) Str(key string) string {
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// StrSlice returns the named field as a string slice. JSON round-trips
// decode lists as []any, so both shapes are accepted.
func (r *Record) StrSlice(key string) []string {
	switch v := r.Fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// reserved keys live on the struct itself, everything else in Fields.
var reservedKeys = map[string]bool{
	"site": true, "sid": true, "success": true, "error": true, "format": true,
}

// Flatten returns the wire form: Fields alongside the envelope keys, so
// callers see {"success":true,"site":"douban","sid":"1","title":...,
// "format":...}.
func (r *Record) Flatten() map[string]any {
	m := make(map[string]any, len(r.Fields)+5)
	for k, v := range r.Fields {
		if reservedKeys[k] {
			continue
		}
		m[k] = v
	}
	m["site"] = r.Site
	m["sid"] = r.SID
	m["success"] = r.Success
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Format != "" {
		m["format"] = r.Format
	}
	return m
}

// MarshalJSON serializes the flattened wire form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

// UnmarshalJSON reverses MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	r.Site, _ = m["site"].(string)
	r.SID, _ = m["sid"].(string)
	r.Success, _ = m["success"].(bool)
	r.Error, _ = m["error"].(string)
	r.Format, _ = m["format"].(string)
	r.Fields = make(map[string]any, len(m))
	for k, v := range m {
		if reservedKeys[k] {
			continue
		}
		r.Fields[k] = v
	}
	return nil
}

// CacheBody serializes the record for persistence with Format stripped.
// The rendered text is derivable and must not be trusted as an immutable
// artifact.
func (r *Record) CacheBody() ([]byte, error) {
	stripped := *r
	stripped.Format = ""
	return json.Marshal(&stripped)
}

// FromCacheBody decodes a persisted record body.
func FromCacheBody(body []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SearchResult is one row of a provider search response.
type SearchResult struct {
	Source   string `json:"source"`
	SID      string `json:"sid"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Year     string `json:"year,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	Link     string `json:"link,omitempty"`
}
