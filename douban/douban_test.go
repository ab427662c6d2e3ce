package douban

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/upstream"
)

const abstractJSON = `{"subject":{"title":"肖申克的救赎","rate":"9.7","release_year":"1994",
"region":"美国","types":["剧情","犯罪"],"duration":"142分钟",
"directors":["弗兰克·德拉邦特"],"actors":["蒂姆·罗宾斯","摩根·弗里曼"],
"cover":"https://img.example/p480747492.webp","episodes_count":0}}`

func newTestProvider(t *testing.T, webHandler, mobileHandler http.HandlerFunc) *Provider {
	t.Helper()
	web := httptest.NewServer(webHandler)
	t.Cleanup(web.Close)
	mobile := httptest.NewServer(mobileHandler)
	t.Cleanup(mobile.Close)

	client := upstream.New(2 * time.Second)
	return New(client, zerolog.Nop(), WithBaseURLs(web.URL, mobile.URL))
}

func TestFetchViaAbstract(t *testing.T) {
	p := newTestProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/j/subject_abstract") {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(abstractJSON))
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("mobile stage should not run when abstract succeeds")
		},
	)

	rec, err := p.Fetch(context.Background(), "1292052")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Success {
		t.Fatalf("expected success record, got error %q", rec.Error)
	}
	if got := rec.Str("chinese_title"); got != "肖申克的救赎" {
		t.Errorf("chinese_title = %q", got)
	}
	if got := rec.Str("year"); got != "1994" {
		t.Errorf("year = %q", got)
	}
}

func TestFetchFallsBackToMobile(t *testing.T) {
	mobileJSON := `{"title":"肖申克的救赎","year":"1994","intro":"希望让人自由。",
"rating":{"value":9.7,"count":3000000},"pic":{"large":"https://img.example/large.webp"},
"genres":["剧情"],"countries":["美国"],"languages":["英语"],"pubdate":["1994-09-10"],
"directors":[{"name":"弗兰克·德拉邦特"}],"actors":[{"name":"蒂姆·罗宾斯"}]}`

	p := newTestProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			// Abstract endpoint behind the anti-bot wall.
			w.WriteHeader(http.StatusForbidden)
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(mobileJSON))
		},
	)

	rec, err := p.Fetch(context.Background(), "1292052")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Str("introduction"); got != "希望让人自由。" {
		t.Errorf("introduction = %q", got)
	}
	if got := rec.Str("douban_rating"); !strings.Contains(got, "9.7") {
		t.Errorf("douban_rating = %q", got)
	}
}

func TestFetchExhaustionIsNotFound(t *testing.T) {
	blocked := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}
	p := newTestProvider(t, blocked, blocked)

	_, err := p.Fetch(context.Background(), "1292052")
	if err == nil {
		t.Fatal("expected error after chain exhaustion")
	}
	if mediainfo.KindOf(err) != mediainfo.KindNotFound {
		t.Errorf("expected uniform not-found outcome, got %v", mediainfo.KindOf(err))
	}
}

func TestSearch(t *testing.T) {
	suggestJSON := `[{"id":"1292052","title":"肖申克的救赎","sub_title":"The Shawshank Redemption",
"year":"1994","type":"movie","img":"https://img.example/s.webp","url":"https://movie.douban.com/subject/1292052/"}]`

	p := newTestProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/j/subject_suggest") {
				http.NotFound(w, r)
				return
			}
			if got := r.URL.Query().Get("q"); got != "肖申克" {
				t.Errorf("query = %q", got)
			}
			w.Write([]byte(suggestJSON))
		},
		func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
	)

	results, err := p.Search(context.Background(), "肖申克")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].SID != "1292052" || results[0].Source != "douban" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestFormat(t *testing.T) {
	rec := mediainfo.New("douban", "1292052")
	rec.Set("chinese_title", "肖申克的救赎")
	rec.Set("foreign_title", "The Shawshank Redemption")
	rec.Set("year", "1994")
	rec.Set("genre", []string{"剧情", "犯罪"})
	rec.Set("douban_rating", "9.7/10 from 3000000 users")
	rec.Set("poster", "https://img.example/p.webp")
	rec.Set("introduction", "希望让人自由。")

	p := New(upstream.New(time.Second), zerolog.Nop())
	out := p.Format(rec)

	for _, want := range []string{
		"[img]https://img.example/p.webp[/img]",
		"◎片  名　肖申克的救赎",
		"◎译  名　The Shawshank Redemption",
		"◎类  别　剧情 / 犯罪",
		"◎简  介",
		"希望让人自由。",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted output missing %q:\n%s", want, out)
		}
	}

	// Format is pure: absent fields leave no empty lines behind.
	if strings.Contains(out, "◎语  言") {
		t.Error("absent language field should not be rendered")
	}
}
