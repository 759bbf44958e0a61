package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	auth     *services.AuthService
	validate *validation.Validator
	log      *zap.Logger
}

func NewAuthHandler(auth *services.AuthService, validate *validation.Validator, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, validate: validate, log: log.Named("auth_handler")}
}

type RegisterResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	User    models.UserProfile `json:"user"`
}

// Register handles POST /api/users/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	profile, err := h.auth.RegisterUser(r.Context(), req)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Success: true,
		Message: "User registered successfully",
		User:    profile,
	})
}

// Login handles POST /api/users/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	result, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{
		Success:     true,
		Message:     "Login successful",
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
		User:        result.User,
	})
}
