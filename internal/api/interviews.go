package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hirelens/hirelens/internal/auth"
	"github.com/hirelens/hirelens/internal/domain"
)

// InterviewHandler serves the interview management endpoints.
type InterviewHandler struct {
	*Handler
}

// NewInterviewHandler creates an interview handler.
func NewInterviewHandler(base *Handler) *InterviewHandler {
	return &InterviewHandler{Handler: base}
}

// RegisterRoutes registers interview routes. The verify endpoint is public
// (candidates have no credentials yet); everything else requires an
// authenticated identity.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/interviews", func(r chi.Router) {
		r.Post("/{id}/verify", h.Verify)

		r.Group(func(r chi.Router) {
			r.Use(h.verifier.Middleware())
			r.Get("/", h.List)
			r.Get("/{id}", h.Get)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(domain.RoleInterviewer, domain.RoleAdmin))
				r.Post("/", h.Create)
			})
		})
	})
}

type createInterviewRequest struct {
	CandidateName  string               `json:"candidate_name"`
	CandidateEmail string               `json:"candidate_email"`
	InterviewType  domain.InterviewType `json:"interview_type"`
	ScheduledAt    time.Time            `json:"scheduled_at"`
	Notes          string               `json:"notes"`
}

// Create schedules a new interview.
func (h *InterviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CandidateName == "" || req.CandidateEmail == "" {
		Error(w, http.StatusBadRequest, "candidate name and email are required")
		return
	}
	if !domain.ValidInterviewType(req.InterviewType) {
		Error(w, http.StatusBadRequest, "invalid interview type")
		return
	}

	now := time.Now()
	iv := &domain.Interview{
		ID:             uuid.NewString(),
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		InterviewType:  req.InterviewType,
		ScheduledAt:    req.ScheduledAt,
		Status:         domain.StatusScheduled,
		Notes:          req.Notes,
		CreatedBy:      identity.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.repo.CreateInterview(r.Context(), iv); err != nil {
		slog.Error("failed to create interview", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create interview")
		return
	}

	slog.Info("interview scheduled", "interview_id", iv.ID, "created_by", identity.ID)
	JSON(w, http.StatusCreated, iv)
}

// Get returns one interview.
func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	iv, err := h.repo.GetInterview(r.Context(), id)
	if err != nil {
		slog.Error("failed to load interview", "error", err, "interview_id", id)
		Error(w, http.StatusInternalServerError, "failed to load interview")
		return
	}
	if iv == nil {
		Error(w, http.StatusNotFound, "interview not found")
		return
	}

	JSON(w, http.StatusOK, iv)
}

// List returns interviews created by the caller.
func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	interviews, err := h.repo.ListInterviews(r.Context(), identity.ID)
	if err != nil {
		slog.Error("failed to list interviews", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list interviews")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"interviews": interviews})
}

type verifyRequest struct {
	CandidateName string `json:"candidate_name"`
}

// Verify checks a candidate against a scheduled interview and issues the
// short-lived interview-scoped credential used to join the session.
func (h *InterviewHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CandidateName == "" {
		Error(w, http.StatusBadRequest, "candidate name is required")
		return
	}

	iv, err := h.repo.GetInterview(r.Context(), id)
	if err != nil {
		slog.Error("failed to load interview for verification", "error", err, "interview_id", id)
		Error(w, http.StatusInternalServerError, "failed to load interview")
		return
	}
	if iv == nil {
		Error(w, http.StatusNotFound, "interview not found")
		return
	}
	if iv.Status != domain.StatusScheduled {
		Error(w, http.StatusBadRequest, "interview cannot be started")
		return
	}

	token, err := h.verifier.IssueCandidateToken(iv.ID, req.CandidateName, h.cfg.Session.CandidateTokenTTL)
	if err != nil {
		slog.Error("failed to issue candidate token", "error", err, "interview_id", id)
		Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"interview": map[string]interface{}{
			"id":             iv.ID,
			"type":           iv.InterviewType,
			"scheduled_date": iv.ScheduledAt,
			"candidate_name": iv.CandidateName,
			"status":         iv.Status,
		},
	})
}
