package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xwell/ptgen/internal/cache"
	"github.com/xwell/ptgen/internal/config"
	"github.com/xwell/ptgen/internal/jobs"
	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/ratelimit"
	"github.com/xwell/ptgen/provider"
)

type stubProvider struct {
	name      string
	fetched   atomic.Int32
	record    func(sid string) *mediainfo.Record
	fetchErr  error
	results   []mediainfo.SearchResult
	searchErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context, sid string) (*mediainfo.Record, error) {
	p.fetched.Add(1)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.record(sid), nil
}

func (p *stubProvider) Format(rec *mediainfo.Record) string {
	return "◎片名 " + rec.Str("title")
}

func (p *stubProvider) Search(ctx context.Context, query string) ([]mediainfo.SearchResult, error) {
	return p.results, p.searchErr
}

func doubanStub() (*stubProvider, *provider.Descriptor) {
	p := &stubProvider{
		name: "douban",
		record: func(sid string) *mediainfo.Record {
			rec := mediainfo.New("douban", sid)
			rec.Set("title", "肖申克的救赎")
			rec.Set("year", "1994")
			return rec
		},
	}
	return p, &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"douban.com"},
		IDPattern: regexp.MustCompile(`/subject/(\d+)`),
	}
}

type memObjects struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemObjects() *memObjects { return &memObjects{m: make(map[string][]byte)} }

func (s *memObjects) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memObjects) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

type memRows struct {
	mu        sync.Mutex
	body      []byte
	fetchedAt time.Time
	upserts   int
}

func (s *memRows) GetRow(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == nil {
		return nil, time.Time{}, false, nil
	}
	return s.body, s.fetchedAt, true, nil
}

func (s *memRows) UpsertRow(ctx context.Context, key string, body []byte, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type serverEnv struct {
	cfg     *config.Config
	objects cache.ObjectStore
	rows    cache.RowStore
	limiter *ratelimit.Limiter
	queue   Enqueuer
}

func newTestServer(t *testing.T, env serverEnv, descriptors ...*provider.Descriptor) *Server {
	t.Helper()
	if env.cfg == nil {
		env.cfg = &config.Config{
			Author: "PT-Gen",
			Cache:  config.CacheConfig{Enabled: true, RefreshAfter: 72 * time.Hour},
		}
	}
	if env.limiter == nil {
		env.limiter = ratelimit.NewDefault()
	}
	reg := provider.NewRegistry()
	for _, d := range descriptors {
		reg.Register(d)
	}
	c := cache.New(env.objects, env.rows, env.cfg.CacheBypassed, zerolog.Nop())
	return New(ServerOptions{
		Cfg:      env.cfg,
		Registry: reg,
		Cache:    c,
		Limiter:  env.limiter,
		Queue:    env.queue,
		Log:      zerolog.Nop(),
	})
}

func get(s *Server, target string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestFetchByURL(t *testing.T) {
	_, d := doubanStub()
	s := newTestServer(t, serverEnv{}, d)

	w := get(s, "/?url=https://movie.douban.com/subject/1292052/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "douban", body["site"])
	assert.Equal(t, "1292052", body["sid"])
	assert.Contains(t, body["format"], "肖申克的救赎")
	assert.Equal(t, "Powered by @PT-Gen", body["copyright"])
	assert.Equal(t, version, body["version"])
	assert.NotZero(t, body["generate_at"])
}

func TestTMDBSidWithoutTypeIsRejected(t *testing.T) {
	p := &stubProvider{name: "tmdb", record: func(sid string) *mediainfo.Record {
		return mediainfo.New("tmdb", sid)
	}}
	d := &provider.Descriptor{
		Provider:  p,
		Domains:   []string{"themoviedb.org"},
		IDPattern: regexp.MustCompile(`/(movie|tv)/(\d+)`),
		ReshapeID: func(m []string) string { return m[1] + "/" + m[2] },
	}
	s := newTestServer(t, serverEnv{}, d)

	w := get(s, "/?source=tmdb&sid=603", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "type")
	assert.Zero(t, p.fetched.Load(), "validation must reject before any upstream call")
}

func TestCachePrimedSkipsSecondFetch(t *testing.T) {
	p, d := doubanStub()
	s := newTestServer(t, serverEnv{objects: newMemObjects()}, d)

	w := get(s, "/?source=douban&sid=1292052", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int32(1), p.fetched.Load())

	w = get(s, "/?source=douban&sid=1292052", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), p.fetched.Load(), "second request must be served from cache")

	// format is regenerated on the cached read, not persisted
	body := decode(t, w)
	assert.Contains(t, body["format"], "肖申克的救赎")
}

func TestSearchFallsBackToSecondary(t *testing.T) {
	douban, dd := doubanStub()
	douban.results = nil // primary comes back empty

	bangumi := &stubProvider{
		name: "bangumi",
		results: []mediainfo.SearchResult{
			{Source: "bangumi", SID: "253", Title: "カウボーイビバップ", Year: "1998"},
		},
	}
	bd := &provider.Descriptor{
		Provider:  bangumi,
		Domains:   []string{"bgm.tv"},
		IDPattern: regexp.MustCompile(`/subject/(\d+)`),
	}
	s := newTestServer(t, serverEnv{}, dd, bd)

	w := get(s, "/?query=星际牛仔", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	first := data[0].(map[string]any)
	assert.Equal(t, "bangumi", first["source"])
	assert.Equal(t, "253", first["sid"])
}

func TestSearchExhaustionReturnsEmptyData(t *testing.T) {
	douban, dd := doubanStub()
	douban.results = nil
	s := newTestServer(t, serverEnv{}, dd)

	w := get(s, "/?query=肯定搜不到的名字", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "no results found")
	data, ok := body["data"].([]any)
	require.True(t, ok, "search failures must still carry a data array")
	assert.Empty(t, data)
}

func TestMaliciousRejectedBeforeAuth(t *testing.T) {
	_, d := doubanStub()
	cfg := &config.Config{
		Author: "PT-Gen",
		APIKey: "secret",
		Cache:  config.CacheConfig{Enabled: true, RefreshAfter: 72 * time.Hour},
	}
	s := newTestServer(t, serverEnv{cfg: cfg}, d)

	// wrong key AND a traversal pattern: the pattern check must win
	w := get(s, "/?url=../../etc/passwd&key=wrong", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// plain wrong key is an auth failure
	w = get(s, "/?source=douban&sid=1&key=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimitWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

	limiter := ratelimit.New(time.Minute, 30, 10*time.Second, ratelimit.WithClock(clock))
	_, d := doubanStub()
	s := newTestServer(t, serverEnv{limiter: limiter}, d)

	for i := 0; i < 30; i++ {
		w := get(s, "/?source=douban&sid=1", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
	w := get(s, "/?source=douban&sid=1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	advance(61 * time.Second)
	w = get(s, "/?source=douban&sid=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStaleDurableHitEnqueuesRefresh(t *testing.T) {
	p, d := doubanStub()
	rec := p.record("1292052")
	body, err := rec.CacheBody()
	require.NoError(t, err)

	rows := &memRows{body: body, fetchedAt: time.Now().Add(-100 * time.Hour)}
	queue := &fakeQueue{}
	s := newTestServer(t, serverEnv{rows: rows, queue: queue}, d)

	w := get(s, "/?source=douban&sid=1292052", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, p.fetched.Load(), "stale hit is still a hit")

	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	assert.Equal(t, jobs.TaskRefreshRecord, task.Type())

	var payload jobs.RefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "douban", payload.Source)
	assert.Equal(t, "1292052", payload.SID)
}

func TestFreshDurableHitDoesNotEnqueue(t *testing.T) {
	p, d := doubanStub()
	body, err := p.record("1").CacheBody()
	require.NoError(t, err)

	rows := &memRows{body: body, fetchedAt: time.Now().Add(-time.Hour)}
	queue := &fakeQueue{}
	s := newTestServer(t, serverEnv{rows: rows, queue: queue}, d)

	w := get(s, "/?source=douban&sid=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, queue.tasks)
}

func TestOptionsPreflight(t *testing.T) {
	_, d := doubanStub()
	s := newTestServer(t, serverEnv{}, d)

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, w.Body.String())
}

func TestBareBrowserGetServesDocs(t *testing.T) {
	_, d := doubanStub()
	s := newTestServer(t, serverEnv{}, d)

	w := get(s, "/", map[string]string{"Accept": "text/html"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "PT-Gen")
}

func TestPostBodyOverridesQuery(t *testing.T) {
	p, d := doubanStub()
	s := newTestServer(t, serverEnv{}, d)

	r := httptest.NewRequest(http.MethodPost, "/?sid=999&source=douban",
		strings.NewReader(`{"sid":"1292052"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "1292052", body["sid"])
	assert.Equal(t, int32(1), p.fetched.Load())
}

func TestUpstreamErrorEnvelope(t *testing.T) {
	p, d := doubanStub()
	p.fetchErr = mediainfo.Upstreamf("douban is blocking requests / 豆瓣拒绝了请求")
	s := newTestServer(t, serverEnv{}, d)

	w := get(s, "/?source=douban&sid=1", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "douban is blocking")
}

func TestPanickingProviderBecomesMasked500(t *testing.T) {
	p, d := doubanStub()
	p.record = func(sid string) *mediainfo.Record { panic("boom") }
	s := newTestServer(t, serverEnv{}, d)

	w := get(s, "/?source=douban&sid=1", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body["error"], "boom", "panic detail must not leak")
}
