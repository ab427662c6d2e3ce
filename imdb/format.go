package imdb

import (
	"strings"

	"github.com/xwell/ptgen/internal/mediainfo"
)

// Format renders an English-layout description.
func (p *Provider) Format(rec *mediainfo.Record) string {
	var b strings.Builder

	if poster := rec.Str("poster"); poster != "" {
		b.WriteString("[img]" + poster + "[/img]\n\n")
	}

	line(&b, "Title", rec.Str("name"))
	line(&b, "AKA", rec.Str("aka"))
	line(&b, "Year", rec.Str("year"))
	line(&b, "Genre", strings.Join(rec.StrSlice("genre"), " / "))
	line(&b, "Runtime", rec.Str("duration"))
	line(&b, "IMDb Rating", rec.Str("imdb_rating"))
	line(&b, "Director", strings.Join(rec.StrSlice("director"), " / "))
	line(&b, "Cast", strings.Join(rec.StrSlice("cast"), " / "))
	line(&b, "IMDb Link", rec.Str("imdb_link"))

	if details := rec.Str("details"); details != "" {
		b.WriteString("\nSynopsis\n\n" + details + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(label + ": " + value + "\n")
}
