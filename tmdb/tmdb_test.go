package tmdb

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

const movieJSON = `{"title":"The Matrix","original_title":"The Matrix","overview":"A computer hacker learns the truth.",
"release_date":"1999-03-30","poster_path":"/matrix.jpg","vote_average":8.2,"vote_count":26000,"runtime":136,
"genres":[{"name":"Action"},{"name":"Science Fiction"}],
"external_ids":{"imdb_id":"tt0133093"},
"credits":{"cast":[{"name":"Keanu Reeves"},{"name":"Laurence Fishburne"}],
"crew":[{"name":"Lana Wachowski","job":"Director"},{"name":"Bill Pope","job":"Director of Photography"}]}}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(upstream.New(2*time.Second), "test-key", zerolog.Nop(), WithBaseURL(srv.URL))
}

func TestFetchMovie(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/603" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(movieJSON))
	})

	rec, err := p.Fetch(context.Background(), "movie/603")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Str("name"); got != "The Matrix" {
		t.Errorf("name = %q", got)
	}
	if got := rec.Str("year"); got != "1999" {
		t.Errorf("year = %q", got)
	}
	if got := rec.StrSlice("director"); len(got) != 1 || got[0] != "Lana Wachowski" {
		t.Errorf("director = %v (DP must not count as director)", got)
	}
	if got := rec.Str("imdb_link"); !strings.Contains(got, "tt0133093") {
		t.Errorf("imdb_link = %q", got)
	}
}

func TestFetchRejectsNamespacelessID(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the API for an invalid id")
	})

	_, err := p.Fetch(context.Background(), "603")
	if err == nil || mediainfo.KindOf(err) != mediainfo.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFetchUpstream404IsNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := p.Fetch(context.Background(), "movie/999999999")
	if mediainfo.KindOf(err) != mediainfo.KindNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestFetchUpstream429IsRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Fetch(context.Background(), "movie/603")
	if mediainfo.KindOf(err) != mediainfo.KindRateLimited {
		t.Errorf("expected rate-limited, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(movieJSON))
	})
	rec, err := p.Fetch(context.Background(), "movie/603")
	if err != nil {
		t.Fatal(err)
	}

	out := p.Format(rec)
	for _, want := range []string{"Title: The Matrix", "Genre: Action / Science Fiction", "TMDB Rating: 8.2/10"} {
		if !strings.Contains(out, want) {
			t.Errorf("format output missing %q", want)
		}
	}
	if strings.Contains(out, "Original Title") {
		t.Error("identical original title should be suppressed")
	}
}
