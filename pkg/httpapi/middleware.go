package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/flagkit/pkg/store"
)

// APIKeyHeader carries the application credential on evaluation requests.
const APIKeyHeader = "X-API-Key"

type ctxKey struct{}

// AppID returns the application id the request was authenticated as.
func AppID(ctx context.Context) (string, bool) {
	appID, ok := ctx.Value(ctxKey{}).(string)
	return appID, ok
}

// APIKeyAuth authenticates requests by resolving the X-API-Key header to an
// application. Requests without a valid key are rejected with 401.
func APIKeyAuth(resolver store.APIKeyResolver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				respondError(w, http.StatusUnauthorized, "API key is required")
				return
			}

			appID, err := resolver.ResolveAPIKey(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, store.ErrAppNotFound) {
					respondError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				log.ErrorContext(r.Context(), "API key resolution failed", "error", err)
				respondError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, appID)))
		})
	}
}
