package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nftregistry/internal/nft/models"
	id "nftregistry/pkg/domain"
	dErrors "nftregistry/pkg/domain-errors"
	"nftregistry/pkg/platform/httputil"
	"nftregistry/pkg/requestcontext"
)

// Service is the registry port the HTTP layer drives.
type Service interface {
	Create(ctx context.Context, owner id.AccountID, data []byte, series id.SeriesID) (id.NFTID, error)
	CreateSeries(ctx context.Context, owner id.AccountID, seriesID id.SeriesID) (*models.Series, error)
	Lock(ctx context.Context, nftID id.NFTID) error
	Unlock(ctx context.Context, nftID id.NFTID) (bool, error)
	SetOwner(ctx context.Context, nftID id.NFTID, owner id.AccountID) error
	FinishSeries(ctx context.Context, caller id.AccountID, seriesID id.SeriesID) error
	Get(ctx context.Context, nftID id.NFTID) (*models.NFT, error)
	Locked(ctx context.Context, nftID id.NFTID) (bool, bool, error)
	Owner(ctx context.Context, nftID id.NFTID) (id.AccountID, bool, error)
	IsSeriesCompleted(ctx context.Context, nftID id.NFTID) (bool, bool, error)
	Series(ctx context.Context, seriesID id.SeriesID) (*models.SeriesDetails, error)
}

// Handler exposes registry operations over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts registry endpoints on the router. Mutations require an
// authenticated account in the request context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/nfts", h.HandleCreate)
	r.Get("/nfts/{id}", h.HandleGet)
	r.Get("/nfts/{id}/owner", h.HandleOwner)
	r.Put("/nfts/{id}/owner", h.HandleSetOwner)
	r.Get("/nfts/{id}/locked", h.HandleLocked)
	r.Post("/nfts/{id}/lock", h.HandleLock)
	r.Post("/nfts/{id}/unlock", h.HandleUnlock)
	r.Get("/nfts/{id}/series-completed", h.HandleSeriesCompleted)
	r.Post("/series", h.HandleCreateSeries)
	r.Get("/series/{id}", h.HandleGetSeries)
	r.Post("/series/{id}/finish", h.HandleFinishSeries)
}

func (h *Handler) requireAccount(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	account := requestcontext.Account(r.Context())
	if account.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return account, true
}

func nftIDParam(w http.ResponseWriter, r *http.Request) (id.NFTID, bool) {
	nftID, err := id.ParseNFTID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return nftID, true
}

func seriesIDParam(w http.ResponseWriter, r *http.Request) (id.SeriesID, bool) {
	seriesID, err := id.ParseSeriesID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return seriesID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeTimeout) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "registry request failed",
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

// HandleCreate handles POST /nfts.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateNFTRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	nftID, err := h.service.Create(ctx, owner, req.Data, req.ParsedSeriesID())
	if err != nil {
		h.fail(w, r, "create", err)
		return
	}
	h.logger.InfoContext(ctx, "nft created",
		"request_id", requestcontext.RequestID(ctx),
		"nft_id", nftID,
		"owner", owner,
	)
	httputil.WriteJSON(w, http.StatusCreated, CreateNFTResponse{ID: uint32(nftID)})
}

// HandleGet handles GET /nfts/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	nft, err := h.service.Get(r.Context(), nftID)
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromNFT(nft))
}

// HandleOwner handles GET /nfts/{id}/owner.
func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	owner, found, err := h.service.Owner(r.Context(), nftID)
	if err != nil {
		h.fail(w, r, "owner", err)
		return
	}
	if !found {
		httputil.WriteError(w, models.ErrInvalidNFTID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{ID: uint32(nftID), Owner: string(owner)})
}

// HandleSetOwner handles PUT /nfts/{id}/owner.
func (h *Handler) HandleSetOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetOwnerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetOwner(ctx, nftID, req.ParsedOwner()); err != nil {
		h.fail(w, r, "set_owner", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnerResponse{ID: uint32(nftID), Owner: string(req.ParsedOwner())})
}

// HandleLocked handles GET /nfts/{id}/locked.
func (h *Handler) HandleLocked(w http.ResponseWriter, r *http.Request) {
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	locked, found, err := h.service.Locked(r.Context(), nftID)
	if err != nil {
		h.fail(w, r, "locked", err)
		return
	}
	if !found {
		httputil.WriteError(w, models.ErrInvalidNFTID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LockedResponse{ID: uint32(nftID), Locked: locked})
}

// HandleLock handles POST /nfts/{id}/lock.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Lock(r.Context(), nftID); err != nil {
		h.fail(w, r, "lock", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LockedResponse{ID: uint32(nftID), Locked: true})
}

// HandleUnlock handles POST /nfts/{id}/unlock. An unknown id is reported
// through found=false rather than an error status.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAccount(w, r); !ok {
		return
	}
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	found, err := h.service.Unlock(r.Context(), nftID)
	if err != nil {
		h.fail(w, r, "unlock", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UnlockResponse{ID: uint32(nftID), Found: found})
}

// HandleSeriesCompleted handles GET /nfts/{id}/series-completed.
func (h *Handler) HandleSeriesCompleted(w http.ResponseWriter, r *http.Request) {
	nftID, ok := nftIDParam(w, r)
	if !ok {
		return
	}
	completed, found, err := h.service.IsSeriesCompleted(r.Context(), nftID)
	if err != nil {
		h.fail(w, r, "is_series_completed", err)
		return
	}
	if !found {
		httputil.WriteError(w, models.ErrInvalidNFTID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SeriesCompletedResponse{ID: uint32(nftID), Completed: completed})
}

// HandleCreateSeries handles POST /series.
func (h *Handler) HandleCreateSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateSeriesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	series, err := h.service.CreateSeries(ctx, owner, req.ParsedSeriesID())
	if err != nil {
		h.fail(w, r, "create_series", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSeries(&models.SeriesDetails{Series: series, NFTs: []id.NFTID{}}))
}

// HandleGetSeries handles GET /series/{id}.
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, ok := seriesIDParam(w, r)
	if !ok {
		return
	}
	details, err := h.service.Series(r.Context(), seriesID)
	if err != nil {
		h.fail(w, r, "series", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSeries(details))
}

// HandleFinishSeries handles POST /series/{id}/finish.
func (h *Handler) HandleFinishSeries(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	seriesID, ok := seriesIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.FinishSeries(r.Context(), caller, seriesID); err != nil {
		h.fail(w, r, "finish_series", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
