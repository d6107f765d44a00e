package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/escrow/models"
	"custodia/internal/ledger"
	"custodia/internal/payment"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// Service defines the escrow operations exposed over HTTP.
type Service interface {
	CreateApplication(ctx context.Context, escrowID id.EscrowID, beneficiary id.Address, target uint64) (*models.EscrowState, error)
	Contribute(ctx context.Context, escrowID id.EscrowID, p ledger.Payment) (uint64, error)
	Release(ctx context.Context, escrowID id.EscrowID) (models.Settlement, error)
	Get(ctx context.Context, escrowID id.EscrowID) (*models.View, error)
}

// CreateEscrowRequest opens an escrow. The id is generated when omitted.
type CreateEscrowRequest struct {
	ID           string     `json:"id,omitempty"`
	Beneficiary  id.Address `json:"beneficiary"`
	TargetAmount uint64     `json:"target_amount"`
}

type ContributeRequest struct {
	Payment payment.Request `json:"payment"`
}

type ContributeResponse struct {
	EscrowID id.EscrowID `json:"escrow_id"`
	Balance  uint64      `json:"balance"`
}

// Handler serves escrow instances.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register registers the escrow routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/escrows", func(r chi.Router) {
		r.Get("/{id}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleCreate)
			r.Post("/{id}/contributions", h.handleContribute)
			r.Post("/{id}/release", h.handleRelease)
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEscrowRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create escrow request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	escrowID := id.NewEscrowID()
	if req.ID != "" {
		parsed, err := id.ParseEscrowID(req.ID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		escrowID = parsed
	}

	state, err := h.service.CreateApplication(ctx, escrowID, req.Beneficiary, req.TargetAmount)
	if err != nil {
		h.writeServiceError(w, r, "failed to create escrow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, state)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.Get(r.Context(), escrowID)
	if err != nil {
		h.writeServiceError(w, r, "failed to get escrow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req ContributeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := h.service.Contribute(ctx, escrowID, req.Payment.Resolve(requestcontext.Caller(ctx)))
	if err != nil {
		h.writeServiceError(w, r, "failed to contribute to escrow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ContributeResponse{EscrowID: escrowID, Balance: balance})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	escrowID, err := id.ParseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	settlement, err := h.service.Release(r.Context(), escrowID)
	if err != nil {
		h.writeServiceError(w, r, "failed to release escrow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settlement)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
