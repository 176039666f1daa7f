package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go-auth-api/internal/cache"
	"go-auth-api/internal/middleware"
	"go-auth-api/internal/model"
	"go-auth-api/pkg/apierror"
)

// MainHandler serves the public and the token-gated endpoints. Protected
// responses are cached briefly per authenticated user.
type MainHandler struct {
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewMainHandler(responseCache cache.Cache, cacheTTL time.Duration) *MainHandler {
	return &MainHandler{cache: responseCache, cacheTTL: cacheTTL}
}

func (h *MainHandler) Public(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, model.MessageResponse{Message: "This is a public endpoint."})
}

func (h *MainHandler) Protected(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	key := fmt.Sprintf("protected:%d", subject)
	if h.cache != nil {
		if cached, hit, err := h.cache.Get(r.Context(), key); err == nil && hit {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		} else if err != nil {
			slog.Warn("response cache get failed", "error", err)
		}
	}

	body, err := json.Marshal(model.APIResponse{
		Success: true,
		Data:    model.MessageResponse{Message: fmt.Sprintf("Hello, user %d!", subject)},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), key, body, h.cacheTTL); err != nil {
			slog.Warn("response cache set failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
