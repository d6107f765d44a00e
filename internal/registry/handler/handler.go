package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/ledger"
	"custodia/internal/payment"
	"custodia/internal/platform/middleware"
	"custodia/internal/registry/models"
	"custodia/pkg/contenthash"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// MaxContentBytes bounds uploads to the content-hash helper.
const MaxContentBytes = 32 << 20

// Service defines the registry operations exposed over HTTP.
type Service interface {
	CreateCertificate(ctx context.Context, hash id.ContentHash, p ledger.Payment) (id.AssetID, error)
	ClaimCertificate(ctx context.Context, hash id.ContentHash) (*models.CertificateRecord, error)
	GetCertificate(ctx context.Context, hash id.ContentHash) (*models.CertificateRecord, error)
	Quote() models.Quote
}

type CreateCertificateRequest struct {
	ContentHash string          `json:"content_hash"`
	Payment     payment.Request `json:"payment"`
}

type CertificateResponse struct {
	ContentHash id.ContentHash    `json:"content_hash"`
	AssetID     id.AssetID        `json:"asset_id"`
	Owner       id.Address        `json:"owner"`
	CID         *contenthash.Info `json:"cid,omitempty"`
}

type ContentHashResponse struct {
	ContentHash id.ContentHash   `json:"content_hash"`
	Size        int              `json:"size"`
	CID         contenthash.Info `json:"cid"`
}

// Handler serves the certificate registry.
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

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registry", func(r chi.Router) {
		r.Post("/content-hash", h.handleContentHash)
		r.Get("/quote", h.handleQuote)
		r.Get("/certificates/{hash}", h.handleGetCertificate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/certificates", h.handleCreateCertificate)
			r.Post("/certificates/{hash}/claim", h.handleClaimCertificate)
		})
	})
}

func (h *Handler) handleContentHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxContentBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "content too large or unreadable"))
		return
	}
	hash, err := contenthash.Compute(data)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash content",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	info, _ := contenthash.Describe(hash)
	httputil.WriteJSON(w, http.StatusOK, ContentHashResponse{ContentHash: hash, Size: len(data), CID: info})
}

func (h *Handler) handleQuote(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Quote())
}

func (h *Handler) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	hash, err := id.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.GetCertificate(r.Context(), hash)
	if err != nil {
		h.writeServiceError(w, r, "failed to get certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) handleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCertificateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create certificate request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	hash, err := id.ParseContentHash(req.ContentHash)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	caller := requestcontext.Caller(ctx)
	assetID, err := h.service.CreateCertificate(ctx, hash, req.Payment.Resolve(caller))
	if err != nil {
		h.writeServiceError(w, r, "failed to create certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(&models.CertificateRecord{
		ContentHash: hash,
		AssetID:     assetID,
		Owner:       caller,
	}))
}

func (h *Handler) handleClaimCertificate(w http.ResponseWriter, r *http.Request) {
	hash, err := id.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.ClaimCertificate(r.Context(), hash)
	if err != nil {
		h.writeServiceError(w, r, "failed to claim certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

// writeServiceError logs server-side failures loudly and client errors quietly.
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

func toResponse(rec *models.CertificateRecord) CertificateResponse {
	resp := CertificateResponse{ContentHash: rec.ContentHash, AssetID: rec.AssetID, Owner: rec.Owner}
	if info, ok := contenthash.Describe(rec.ContentHash); ok {
		resp.CID = &info
	}
	return resp
}
