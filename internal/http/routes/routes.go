// Package routes wires the gateway's HTTP surface: one query endpoint
// behind the validation chain, plus health, metrics, and a docs page.
package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/xwell/ptgen/internal/cache"
	"github.com/xwell/ptgen/internal/config"
	"github.com/xwell/ptgen/internal/fallback"
	appmw "github.com/xwell/ptgen/internal/http/middleware"
	"github.com/xwell/ptgen/internal/jobs"
	"github.com/xwell/ptgen/internal/mediainfo"
	"github.com/xwell/ptgen/internal/metrics"
	"github.com/xwell/ptgen/internal/ratelimit"
	"github.com/xwell/ptgen/internal/route"
	"github.com/xwell/ptgen/provider"
)

const version = "0.6.0"

// searchStageTimeout bounds each provider attempt in a search chain; the
// chain as a whole is bounded by the sum, not by a shared deadline.
const searchStageTimeout = 12 * time.Second

// Enqueuer is the slice of asynq.Client the server needs for background
// refresh. Nil disables refresh entirely.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router *chi.Mux
	Cfg    *config.Config
	Cache  *cache.TwoTier
	Queue  Enqueuer
	Log    zerolog.Logger

	router *route.Router
}

type ServerOptions struct {
	Cfg      *config.Config
	Registry *provider.Registry
	Cache    *cache.TwoTier
	Limiter  *ratelimit.Limiter
	Queue    Enqueuer
	Log      zerolog.Logger
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	s := &Server{
		Router: r,
		Cfg:    opts.Cfg,
		Cache:  opts.Cache,
		Queue:  opts.Queue,
		Log:    opts.Log,
		router: route.New(opts.Registry),
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	auth := appmw.KeyAuth{
		APIKey:        opts.Cfg.APIKey,
		InternalToken: opts.Cfg.InternalToken,
		Docs:          http.HandlerFunc(s.handleDocs),
	}
	r.Group(func(pr chi.Router) {
		pr.Use(s.recoverer)
		pr.Use(s.traceID)
		pr.Use(appmw.RejectMalicious)
		pr.Use(auth.Middleware)
		pr.Use(appmw.RateLimit(opts.Limiter))
		pr.Get("/*", s.handleQuery)
		pr.Post("/*", s.handleQuery)
		pr.Options("/*", s.handleOptions)
	})

	return s
}

// recoverer is the outermost backstop: a panic anywhere below becomes a
// logged, masked 500 envelope instead of a dead connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.Log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("request panicked")
				s.respondError(w, mediainfo.Internalf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		logger := s.Log.With().Str("trace_id", id).Logger()
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req := parseRequest(r)
	if req == (route.Request{}) && r.Method == http.MethodGet {
		// a human poking the root gets usage notes, not an error
		s.handleDocs(w, r)
		return
	}

	target, err := s.router.Resolve(req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	switch target.Mode {
	case route.ModeSearch:
		s.handleSearch(r.Context(), w, target)
	default:
		s.handleFetch(r.Context(), w, target)
	}
}

func (s *Server) handleSearch(ctx context.Context, w http.ResponseWriter, target *route.Target) {
	stages := make([]fallback.Stage[mediainfo.SearchResult], 0, len(target.SearchChain))
	for _, d := range target.SearchChain {
		searcher, ok := d.Provider.(provider.Searcher)
		if !ok {
			continue
		}
		stages = append(stages, fallback.Stage[mediainfo.SearchResult]{
			Name:    d.Provider.Name(),
			Timeout: searchStageTimeout,
			Run: func(ctx context.Context) ([]mediainfo.SearchResult, error) {
				return searcher.Search(ctx, target.Query)
			},
		})
	}

	results, err := fallback.Resolve(ctx, *zerolog.Ctx(ctx), stages)
	if err != nil {
		metrics.Requests.WithLabelValues("error").Inc()
		body := map[string]any{
			"success": false,
			"error":   mediainfo.UserMessage(err),
			"data":    []mediainfo.SearchResult{},
		}
		s.addMeta(body)
		s.respondJSON(w, mediainfo.HTTPStatus(err), body)
		return
	}

	metrics.Requests.WithLabelValues("ok").Inc()
	body := map[string]any{"success": true, "data": results}
	s.addMeta(body)
	s.respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleFetch(ctx context.Context, w http.ResponseWriter, target *route.Target) {
	d := target.Descriptor
	name := d.Provider.Name()

	fetchSID := target.SID
	if target.Namespace != "" {
		fetchSID = target.Namespace + "/" + target.SID
	}
	key := cache.Key{Source: name, Namespace: target.Namespace, SID: target.SID}

	rec, hit, err := s.Cache.GetOrFetch(ctx, key, func(ctx context.Context) (*mediainfo.Record, error) {
		return d.Provider.Fetch(ctx, fetchSID)
	})
	if err != nil {
		switch mediainfo.KindOf(err) {
		case mediainfo.KindUpstream, mediainfo.KindRateLimited:
			metrics.ProviderErrors.WithLabelValues(name).Inc()
		}
		s.respondError(w, err)
		return
	}

	// rendered text is never persisted, regenerate it on every read
	rec.Format = d.Provider.Format(rec)

	if hit != nil && hit.Tier == cache.TierRow && time.Since(hit.FetchedAt) > s.Cfg.Cache.RefreshAfter {
		s.enqueueRefresh(ctx, key)
	}

	metrics.Requests.WithLabelValues("ok").Inc()
	body := rec.Flatten()
	s.addMeta(body)
	s.respondJSON(w, http.StatusOK, body)
}

// enqueueRefresh schedules a background re-fetch for a durable-tier hit
// past its refresh age. Best effort: the stale record was already served.
func (s *Server) enqueueRefresh(ctx context.Context, key cache.Key) {
	if s.Queue == nil {
		return
	}
	payload, err := json.Marshal(jobs.RefreshPayload{Source: key.Source, Namespace: key.Namespace, SID: key.SID})
	if err != nil {
		return
	}
	task := asynq.NewTask(jobs.TaskRefreshRecord, payload)
	if _, err := s.Queue.Enqueue(task, asynq.Queue("refresh"), asynq.MaxRetry(2)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("source", key.Source).Str("sid", key.SID).
			Msg("enqueue refresh failed")
	}
}

func (s *Server) addMeta(body map[string]any) {
	body["copyright"] = fmt.Sprintf("Powered by @%s", s.Cfg.Author)
	body["version"] = version
	body["generate_at"] = time.Now().Unix()
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	metrics.Requests.WithLabelValues("error").Inc()
	body := map[string]any{"success": false, "error": mediainfo.UserMessage(err)}
	s.addMeta(body)
	s.respondJSON(w, mediainfo.HTTPStatus(err), body)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.Log.Warn().Err(err).Msg("write response failed")
	}
}
