// Package handler exposes the mint gatekeeper over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/service"
	dErrors "mintgate/pkg/domain-errors"
	"mintgate/pkg/platform/httputil"
	"mintgate/pkg/platform/middleware/admin"
	"mintgate/pkg/requestcontext"
)

// Service defines the mint operations the handler delegates to.
type Service interface {
	Authorize(ctx context.Context, req service.AuthorizeRequest) (*models.Authorization, error)
	Register(ctx context.Context, claim models.RegistrationClaim) error
	Status(ctx context.Context) ([]models.CategoryStatus, error)
}

// Contract is what clients need to submit the mint transaction.
type Contract struct {
	Address string
	ABI     []byte
}

// Handler handles the mint endpoints.
type Handler struct {
	mint       Service
	contract   Contract
	logger     *slog.Logger
	adminToken string
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAdminToken enables the operator routes under /admin.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

func New(mint Service, contract Contract, opts ...Option) *Handler {
	h := &Handler{
		mint:     mint,
		contract: contract,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public and operator routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/authorizeNFTMint", h.handleAuthorize)
	r.Post("/registerToken", h.handleRegister)
	r.Get("/contractABI", h.handleContractABI)
	r.Get("/contractAddress", h.handleContractAddress)

	if h.adminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
			r.Get("/admin/categories", h.handleCategories)
		})
	}
}

type authorizeRequest struct {
	SignedMessage   string `json:"signedMessage"`
	OriginalMessage string `json:"originalMessage"`
}

type authorizeResponse struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	TokenID   int64  `json:"tokenId"`
	Timestamp int64  `json:"timestamp"`
}

type registerRequest struct {
	SignedMessage   string `json:"signedMessage"`
	OriginalMessage string `json:"originalMessage"`
	Nonce           string `json:"nonce"`
	TokenID         int64  `json:"tokenId"`
	TokenURI        string `json:"tokenURI"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasUsed         uint64 `json:"gasUsed"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req authorizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	auth, err := h.mint.Authorize(ctx, service.AuthorizeRequest{
		SignedMessage:   req.SignedMessage,
		OriginalMessage: req.OriginalMessage,
	})
	if err != nil {
		h.writeMintError(ctx, w, "authorization failed", requestID, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, authorizeResponse{
		Message:   "Authorized to mint",
		Signature: auth.Signature,
		Nonce:     auth.Nonce,
		TokenID:   auth.TokenID,
		Timestamp: auth.Timestamp,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.mint.Register(ctx, models.RegistrationClaim{
		SignedMessage:   req.SignedMessage,
		OriginalMessage: req.OriginalMessage,
		Nonce:           req.Nonce,
		TokenID:         req.TokenID,
		TokenURI:        req.TokenURI,
		TransactionHash: req.TransactionHash,
		BlockNumber:     req.BlockNumber,
		GasUsed:         req.GasUsed,
	})
	if err != nil {
		h.writeMintError(ctx, w, "registration failed", requestID, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Token registered successfully."})
}

func (h *Handler) handleContractABI(w http.ResponseWriter, r *http.Request) {
	if len(h.contract.ABI) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "contract ABI not configured"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.contract.ABI)
}

func (h *Handler) handleContractAddress(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"contractAddress": h.contract.Address})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.mint.Status(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read category status",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to read category status"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"categories": status})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeMintError logs err at a level matching its status and writes the
// envelope. AlreadyMinted responses carry the minted token's URI.
func (h *Handler) writeMintError(ctx context.Context, w http.ResponseWriter, msg, requestID string, err error) {
	status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.InfoContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}

	if minted, ok := models.AsAlreadyMinted(err); ok {
		httputil.WriteErrorWithFields(w, err, map[string]any{"tokenURI": minted.TokenURI})
		return
	}
	httputil.WriteError(w, err)
}
