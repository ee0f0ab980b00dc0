// internal/accounts/handler.go
package accounts

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gymdesk/internal/httpjson"
)

// Handler serves owner registration, sign-in and sign-out.
type Handler struct {
	service  Service
	sessions *Sessions
	log      *zap.Logger
}

// NewHandler creates a new accounts handler.
func NewHandler(service Service, sessions *Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, sessions: sessions, log: logger}
}

// Routes mounts the account endpoints. LoadSessionUser must run before it.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.With(RequireSignedIn).Post("/logout", h.handleLogout)
	r.With(RequireSignedIn).Get("/me", h.handleMe)
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := h.sessions.SignIn(w, r, user); err != nil {
		h.log.Error("failed to start session", zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	httpjson.Write(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if err := h.sessions.SignIn(w, r, user); err != nil {
		h.log.Error("failed to start session", zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	httpjson.Write(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r)
	h.service.Logout(u.ID)
	if err := h.sessions.SignOut(w, r); err != nil {
		h.log.Warn("failed to clear session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r)
	user, err := h.service.GetUser(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, user)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		httpjson.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		httpjson.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRateLimited):
		httpjson.Error(w, http.StatusTooManyRequests, err.Error())
	default:
		h.log.Error("accounts request failed", zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
	}
}
