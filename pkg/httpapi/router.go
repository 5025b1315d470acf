package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/service"
	"github.com/dmitrymomot/flagkit/pkg/store"
)

// Option configures the evaluation router.
type Option func(*api)

// WithLogger sets the logger for request handling failures.
func WithLogger(log *slog.Logger) Option {
	return func(a *api) {
		if log != nil {
			a.log = log
		}
	}
}

// WithHealthcheck installs a readiness probe behind the health endpoint.
// When the probe fails the endpoint answers 503 instead of 200.
func WithHealthcheck(probe func(ctx context.Context) error) Option {
	return func(a *api) {
		a.probe = probe
	}
}

type api struct {
	svc   *service.Service
	log   *slog.Logger
	probe func(ctx context.Context) error
}

// Router builds the evaluation API. The health endpoint is public; every
// evaluation endpoint requires a valid X-API-Key resolving to an
// application through resolver.
//
//	r := chi.NewRouter()
//	r.Mount("/evaluate", httpapi.Router(svc, store))
func Router(svc *service.Service, resolver store.APIKeyResolver, opts ...Option) chi.Router {
	a := &api{svc: svc, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Get("/health", a.health)

	r.Group(func(authed chi.Router) {
		authed.Use(APIKeyAuth(resolver, a.log))
		authed.Post("/flags", a.evaluateAll)
		authed.Post("/flags/batch", a.evaluateBatch)
		authed.Post("/flags/{flagKey}", a.evaluateOne)
	})

	return r
}

type evaluateRequest struct {
	Context evaluation.Context `json:"context"`
}

type batchRequest struct {
	FlagKeys []string           `json:"flagKeys"`
	Context  evaluation.Context `json:"context"`
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.probe != nil {
		if err := a.probe(r.Context()); err != nil {
			a.log.ErrorContext(r.Context(), "health probe failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) evaluateAll(w http.ResponseWriter, r *http.Request) {
	appID, _ := AppID(r.Context())

	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	flags, err := a.svc.AllFlags(r.Context(), appID, req.Context)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "invalid request")
			return
		}
		a.log.ErrorContext(r.Context(), "flag evaluation failed", "app_id", appID, "error", err)
		respondError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}
	respondData(w, http.StatusOK, flags)
}

func (a *api) evaluateBatch(w http.ResponseWriter, r *http.Request) {
	appID, _ := AppID(r.Context())

	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.FlagKeys) == 0 {
		respondError(w, http.StatusBadRequest, "flagKeys is required")
		return
	}

	respondData(w, http.StatusOK, a.svc.EvaluateFlags(r.Context(), appID, req.FlagKeys, req.Context))
}

func (a *api) evaluateOne(w http.ResponseWriter, r *http.Request) {
	appID, _ := AppID(r.Context())
	flagKey := chi.URLParam(r, "flagKey")

	var req evaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondData(w, http.StatusOK, a.svc.EvaluateFlag(r.Context(), appID, flagKey, req.Context))
}

// decodeBody parses the JSON request body into dst. An empty body is
// allowed and leaves dst zero-valued. Reports whether handling may proceed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := decodeJSON(r, dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
