// Package handler lets a caller read back their own audit trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"custodia/internal/audit"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

type Lister interface {
	List(ctx context.Context, actor id.Address, limit int) ([]audit.Event, error)
}

type EventsResponse struct {
	Events []audit.Event `json:"events"`
}

type Handler struct {
	lister       Lister
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(lister Lister, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{lister: lister, logger: logger, jwtValidator: jwtValidator}
}

func (h *Handler) Register(r chi.Router) {
	r.With(middleware.RequireAuth(h.jwtValidator, h.logger)).Get("/audit/events", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.lister.List(ctx, requestcontext.Caller(ctx), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// parseLimit reads ?limit, defaulting to 100 and capping at 500.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}
