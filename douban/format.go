package douban

import (
	"strings"

	"github.com/xwell/ptgen/internal/mediainfo"
)

// Format renders the tracker description in the conventional ◎-prefixed
// layout. Pure: reads only the record.
func (p *Provider) Format(rec *mediainfo.Record) string {
	var b strings.Builder

	if poster := rec.Str("poster"); poster != "" {
		b.WriteString("[img]" + poster + "[/img]\n\n")
	}

	line(&b, "译  名", rec.Str("foreign_title"))
	line(&b, "片  名", rec.Str("chinese_title"))
	line(&b, "年  代", rec.Str("year"))
	line(&b, "产  地", rec.Str("region"))
	line(&b, "类  别", strings.Join(rec.StrSlice("genre"), " / "))
	line(&b, "语  言", rec.Str("language"))
	line(&b, "上映日期", strings.Join(rec.StrSlice("playdate"), " / "))
	line(&b, "豆瓣评分", rec.Str("douban_rating"))
	line(&b, "集  数", rec.Str("episodes"))
	line(&b, "片  长", rec.Str("duration"))
	line(&b, "导  演", strings.Join(rec.StrSlice("director"), " / "))
	line(&b, "主  演", strings.Join(rec.StrSlice("cast"), " / "))
	line(&b, "豆瓣链接", rec.Str("douban_link"))

	if intro := rec.Str("introduction"); intro != "" {
		b.WriteString("\n◎简  介\n\n")
		for _, para := range strings.Split(intro, "\n") {
			para = strings.TrimSpace(para)
			if para != "" {
				b.WriteString("　　" + para + "\n")
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("◎" + label + "　" + value + "\n")
}
