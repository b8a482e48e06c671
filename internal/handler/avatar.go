package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// maxAvatarBytes caps avatar uploads.
const maxAvatarBytes = 4 << 20

var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// avatarStore puts objects and builds their public URLs.
type avatarStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PublicURL(key string) string
}

// AvatarHandler serves profile picture uploads.
type AvatarHandler struct {
	objects avatarStore
	users   *store.UserStore
	logger  *slog.Logger
}

func NewAvatarHandler(objects avatarStore, users *store.UserStore, logger *slog.Logger) *AvatarHandler {
	return &AvatarHandler{objects: objects, users: users, logger: logger}
}

// Upload handles POST /api/v1/avatar with multipart field "avatar".
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+1<<20)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "expected multipart form with an avatar image")
		return
	}

	file, _, err := r.FormFile("avatar")
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, `missing "avatar" field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxAvatarBytes {
		WriteError(w, http.StatusBadRequest, CodeBadImage, "avatar must be an image under 4 MiB")
		return
	}
	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		WriteError(w, http.StatusBadRequest, CodeBadImage, "avatar must be PNG, JPEG, or WebP")
		return
	}

	key := "avatars/" + strconv.FormatInt(user.ID, 10) + "/" + uuid.NewString() + "." + ext
	if err := h.objects.Put(r.Context(), key, data, contentType); err != nil {
		h.logger.Error("store avatar", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not store avatar")
		return
	}

	url := h.objects.PublicURL(key)
	if err := h.users.UpdateAvatarURL(user.ID, url); err != nil {
		h.logger.Error("update avatar url", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not save avatar")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}
