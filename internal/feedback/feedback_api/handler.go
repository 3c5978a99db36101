package feedback_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventhub/internal/apperr"
	"eventhub/internal/auth"
	"eventhub/internal/feedback"
	"eventhub/internal/logger"
	"eventhub/internal/utils"
)

type Handler struct {
	Feedback *feedback.Service
	Logger   *logger.Logger
}

func NewHandler(feedbackSvc *feedback.Service, log *logger.Logger) *Handler {
	return &Handler{Feedback: feedbackSvc, Logger: log}
}

// ValidateAttendance reports whether the caller can submit feedback for an
// event without holding a token.
func (h *Handler) ValidateAttendance(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	eligibility, err := h.Feedback.ValidateAttendance(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Debug("FEEDBACK", fmt.Sprintf("ValidateAttendance: event=%s user=%s: %v", eventID, userID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "eligible for feedback", eligibility)
}

// ValidateToken checks a feedback token without consuming it so the client
// can render the form.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}

	info, err := h.Feedback.ValidateToken(r.Context(), body.Token, userID)
	if err != nil {
		h.Logger.Debug("FEEDBACK", fmt.Sprintf("ValidateToken: user=%s: %v", userID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "token is valid", info)
}

// Submit creates feedback for an event without a token.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var body struct {
		EventID string `json:"event_id"`
		feedback.Submission
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if body.EventID == "" {
		utils.WriteError(w, apperr.Validation("event_id is required"))
		return
	}

	summary, err := h.Feedback.Submit(r.Context(), body.EventID, userID, body.Submission)
	if err != nil {
		h.Logger.Error("FEEDBACK", fmt.Sprintf("Submit: event=%s user=%s: %v", body.EventID, userID, err))
		utils.WriteError(w, err)
		return
	}
	h.Logger.Info("FEEDBACK", fmt.Sprintf("Submit: feedback %s created for event %s", summary.ID, body.EventID))
	utils.WriteJSON(w, http.StatusCreated, "feedback submitted", summary)
}

// SubmitWithToken redeems a single-use token and creates the feedback row.
func (h *Handler) SubmitWithToken(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var body struct {
		Token string `json:"token"`
		feedback.Submission
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if body.Token == "" {
		utils.WriteError(w, apperr.Validation("token is required"))
		return
	}

	summary, err := h.Feedback.RedeemToken(r.Context(), body.Token, userID, body.Submission)
	if err != nil {
		h.Logger.Error("FEEDBACK", fmt.Sprintf("SubmitWithToken: user=%s: %v", userID, err))
		utils.WriteError(w, err)
		return
	}
	h.Logger.Info("FEEDBACK", fmt.Sprintf("SubmitWithToken: feedback %s created", summary.ID))
	utils.WriteJSON(w, http.StatusCreated, "feedback submitted", summary)
}

// GenerateTokens issues feedback tokens for every attendee still missing
// feedback. Organizer only.
func (h *Handler) GenerateTokens(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("FEEDBACK", fmt.Sprintf("GenerateTokens: event=%s caller=%s", eventID, userID))

	issued, err := h.Feedback.IssueTokens(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Error("FEEDBACK", fmt.Sprintf("GenerateTokens: event=%s: %v", eventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, fmt.Sprintf("%d feedback tokens issued", len(issued)), issued)
}
