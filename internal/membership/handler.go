// internal/membership/handler.go
package membership

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gymdesk/internal/accounts"
	"gymdesk/internal/calendar"
	"gymdesk/internal/httpjson"
	"gymdesk/internal/plans"
)

// Handler serves the member, dashboard, profile and plan endpoints.
type Handler struct {
	service Service
	log     *zap.Logger
	now     func() time.Time
}

// NewHandler creates a new membership handler.
func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, log: logger, now: time.Now}
}

// Routes mounts the membership API. Everything except /plans requires a
// signed-in owner; accounts.Sessions.LoadSessionUser must run before it.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/plans", h.handleListPlans)
	r.Get("/plans/preview", h.handlePreview)

	r.Group(func(r chi.Router) {
		r.Use(accounts.RequireSignedIn)

		r.Get("/dashboard", h.handleDashboard)

		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile", h.handleSaveProfile)

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.handleListMembers)
			r.Post("/", h.handleAddMember)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetMember)
				r.Put("/", h.handleUpdateMember)
				r.Delete("/", h.handleDeleteMember)
				r.Post("/renew", h.handleRenew)
				r.Get("/journal", h.handleJournal)
				r.Get("/reminder", h.handleReminder)
			})
		})
	})

	return r
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, plans.All())
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start := calendar.Of(h.now().UTC())
	if s := q.Get("start"); s != "" {
		d, err := calendar.Parse(s)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		start = d
	}

	end, err := h.service.PreviewEndDate(start, plans.Code(q.Get("plan")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]calendar.Date{
		"start_date": start,
		"end_date":   end,
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	d, err := h.service.Dashboard(r.Context(), owner, parseBool(r.URL.Query().Get("refresh")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, d)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := RosterQuery{
		FilterOptions: FilterOptions{
			Status: ParseStatusFilter(q.Get("status")),
			Search: q.Get("q"),
		},
		Refresh: parseBool(q.Get("refresh")),
	}
	if s := q.Get("max"); s != "" {
		max, err := strconv.Atoi(s)
		if err != nil || max < 0 {
			httpjson.Error(w, http.StatusBadRequest, "max must be a non-negative integer")
			return
		}
		query.Max = max
	}

	view, err := h.service.Roster(r.Context(), ownerID(r), query)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, view)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.service.AddMember(r.Context(), ownerID(r), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetMember(r.Context(), ownerID(r), id, parseBool(r.URL.Query().Get("refresh")))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, detail)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	var in MemberInput
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := h.service.UpdateMember(r.Context(), ownerID(r), id, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, member)
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMember(r.Context(), ownerID(r), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	var req struct {
		Plan      plans.Code    `json:"plan"`
		StartDate calendar.Date `json:"start_date"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	renewal, err := h.service.RenewMember(r.Context(), ownerID(r), id, req.Plan, req.StartDate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, renewal)
}

func (h *Handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	events, err := h.service.MemberJournal(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, events)
}

func (h *Handler) handleReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberID(w, r)
	if !ok {
		return
	}
	reminder, err := h.service.Reminder(r.Context(), ownerID(r), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, reminder)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GymProfile(r.Context(), ownerID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if err := httpjson.Decode(r, &in); err != nil {
		httpjson.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.service.SaveGymProfile(r.Context(), ownerID(r), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, p)
}

func (h *Handler) memberID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid member ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidPlan):
		httpjson.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		httpjson.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRateLimited):
		httpjson.Error(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrUnavailable):
		// Nothing cached and the store read failed.
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		h.log.Error("membership request failed", zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, err.Error())
	}
}

// ownerID is only called behind RequireSignedIn.
func ownerID(r *http.Request) uuid.UUID {
	u, _ := accounts.CurrentUser(r)
	return u.ID
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
