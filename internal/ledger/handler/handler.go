package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/ledger"
	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Account(ctx context.Context, addr id.Address) (*ledger.Account, error)
	Pay(ctx context.Context, recipient id.Address, amount uint64) error
	Register(ctx context.Context, asset id.AssetID) error
}

// PaymentRequest is a plain transfer from the caller.
type PaymentRequest struct {
	Recipient id.Address `json:"recipient"`
	Amount    uint64     `json:"amount"`
}

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

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/accounts/{address}", h.handleAccount)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/payments", h.handlePay)
			r.Post("/assets/{id}/registrations", h.handleRegister)
		})
	})
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := h.service.Account(r.Context(), addr)
	if err != nil {
		h.writeServiceError(w, r, "failed to read account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Pay(r.Context(), req.Recipient, req.Amount); err != nil {
		h.writeServiceError(w, r, "failed to send payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	asset, err := id.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Register(r.Context(), asset); err != nil {
		h.writeServiceError(w, r, "failed to register for asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", middleware.GetRequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", middleware.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
