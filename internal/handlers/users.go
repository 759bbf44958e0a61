package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
)

const maxAvatarSize = 5 << 20

var avatarContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// UserHandler serves the caller's profile. A user may only see and change
// their own profile; any other id is reported as not found.
type UserHandler struct {
	auth     *services.AuthService
	uploader services.AvatarUploader
	validate *validation.Validator
	log      *zap.Logger
}

// NewUserHandler builds the handler. uploader may be nil, which disables
// picture uploads.
func NewUserHandler(auth *services.AuthService, uploader services.AvatarUploader, validate *validation.Validator, log *zap.Logger) *UserHandler {
	return &UserHandler{auth: auth, uploader: uploader, validate: validate, log: log.Named("user_handler")}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CurrentUser(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// ownProfileID returns the {id} path parameter if it names the caller.
func (h *UserHandler) ownProfileID(r *http.Request) (uuid.UUID, error) {
	callerID, err := h.auth.CurrentUserID(r.Context())
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || id != callerID {
		return uuid.Nil, services.ErrUserNotFound
	}
	return id, nil
}

// GetProfile handles GET /api/users/{id}/profile.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownProfileID(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	profile, err := h.auth.GetUserProfile(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile handles PUT /api/users/{id}/profile.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.ownProfileID(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.validate.Struct(update); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	profile, err := h.auth.UpdateUserProfile(r.Context(), id, update)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UploadPicture handles POST /api/users/{id}/profile/picture with a
// multipart "file" field.
func (h *UserHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		respondError(w, r, h.log, services.ErrUploadsDisabled)
		return
	}

	id, err := h.ownProfileID(r)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+(1<<20))
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		respondError(w, r, h.log, validation.Field("file", "must be a multipart upload of at most 5 MB"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, h.log, validation.Field("file", "is required"))
		return
	}
	defer file.Close()

	if header.Size > maxAvatarSize {
		respondError(w, r, h.log, validation.Field("file", "must be at most 5 MB"))
		return
	}
	if err := checkImage(file); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	url, err := h.uploader.UploadAvatar(r.Context(), id.String(), file)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	profile, err := h.auth.SetProfilePicture(r.Context(), id, url)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// checkImage sniffs the upload's content type and rewinds it.
func checkImage(file multipart.File) error {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return validation.Field("file", "could not be read")
	}
	if !avatarContentTypes[http.DetectContentType(head[:n])] {
		return validation.Field("file", "must be a JPEG, PNG, WebP or GIF image")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return nil
}

type LoginHistoryResponse struct {
	Events []models.AuthEvent `json:"events"`
}

// LoginHistory handles GET /api/users/me/login-history?limit=.
func (h *UserHandler) LoginHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(w, r, h.log, validation.Field("limit", "must be between 1 and 100"))
			return
		}
		limit = n
	}

	user, err := h.auth.CurrentUser(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	events, err := h.auth.LoginHistory(r.Context(), user.Email, limit)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginHistoryResponse{Events: events})
}
