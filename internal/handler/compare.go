package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/compare"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/quota"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// CompareRunner executes one screenshot comparison.
type CompareRunner interface {
	Run(ctx context.Context, user *model.User, before, after compare.Upload) (*model.Comparison, *quota.Grant, error)
}

// CompareHandler serves comparison creation and retrieval.
type CompareHandler struct {
	runner      CompareRunner
	comparisons *store.ComparisonStore
	logger      *slog.Logger
}

func NewCompareHandler(runner CompareRunner, comparisons *store.ComparisonStore, logger *slog.Logger) *CompareHandler {
	return &CompareHandler{runner: runner, comparisons: comparisons, logger: logger}
}

type compareResponse struct {
	Comparison *model.Comparison `json:"comparison"`
	Quota      *quota.Grant      `json:"quota"`
}

// Create handles POST /api/v1/compare with multipart fields "before" and "after".
func (h *CompareHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*compare.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(2 * compare.MaxImageBytes); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "expected multipart form with before and after images")
		return
	}

	before, err := readFormImage(r, "before")
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, `missing or unreadable "before" image`)
		return
	}
	after, err := readFormImage(r, "after")
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, `missing or unreadable "after" image`)
		return
	}

	c, grant, err := h.runner.Run(r.Context(), user, before, after)
	if err != nil {
		h.writeRunError(w, user, err)
		return
	}
	WriteJSON(w, http.StatusCreated, compareResponse{Comparison: c, Quota: grant})
}

func (h *CompareHandler) writeRunError(w http.ResponseWriter, user *model.User, err error) {
	switch {
	case errors.Is(err, compare.ErrBadImage):
		WriteError(w, http.StatusBadRequest, CodeBadImage, "uploads must be PNG, JPEG, or WebP under 8 MiB")
	case errors.Is(err, quota.ErrNoPlan):
		WriteError(w, http.StatusPaymentRequired, CodeNoPlan, "an active subscription is required")
	case errors.Is(err, quota.ErrLimitExceeded):
		WriteError(w, http.StatusTooManyRequests, CodeLimitExceeded, "daily comparison limit reached")
	case errors.Is(err, compare.ErrVisionFailed):
		WriteError(w, http.StatusBadGateway, CodeVisionFailed, "image analysis failed, try again")
	default:
		h.logger.Error("run comparison", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "comparison failed")
	}
}

// List handles GET /api/v1/comparisons.
func (h *CompareHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.comparisons.ListByUserID(user.ID, limit)
	if err != nil {
		h.logger.Error("list comparisons", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not list comparisons")
		return
	}
	if list == nil {
		list = []*model.Comparison{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"comparisons": list})
}

// Get handles GET /api/v1/comparisons/{id}. Rows belonging to other users
// look identical to missing ones.
func (h *CompareHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	c, err := h.comparisons.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get comparison", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not load comparison")
		return
	}
	if c == nil || c.UserID != user.ID {
		WriteError(w, http.StatusNotFound, CodeNotFound, "comparison not found")
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

func readFormImage(r *http.Request, field string) (compare.Upload, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return compare.Upload{}, err
	}
	defer file.Close()
	data, err := readLimited(file, compare.MaxImageBytes+1)
	if err != nil {
		return compare.Upload{}, err
	}
	return compare.Upload{Data: data}, nil
}

// readLimited reads at most limit bytes. One extra byte over the image cap is
// allowed through so the size check downstream can reject with BAD_IMAGE.
func readLimited(f multipart.File, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(f, limit))
}
