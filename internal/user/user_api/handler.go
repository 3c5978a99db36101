package user_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"eventhub/internal/apperr"
	"eventhub/internal/auth"
	"eventhub/internal/logger"
	"eventhub/internal/user"
	"eventhub/internal/utils"
	"eventhub/internal/views"
)

type Handler struct {
	Users  *user.Service
	Views  *views.Service
	Logger *logger.Logger
}

func NewHandler(users *user.Service, viewsSvc *views.Service, log *logger.Logger) *Handler {
	return &Handler{Users: users, Views: viewsSvc, Logger: log}
}

// RequestOtp starts registration by mailing a verification code.
func (h *Handler) RequestOtp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	h.Logger.Info("USER", fmt.Sprintf("RequestOtp: email=%s", body.Email))

	if err := h.Users.RequestOtp(r.Context(), body.Name, body.Email, body.Password); err != nil {
		h.Logger.Error("USER", fmt.Sprintf("RequestOtp: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "verification code sent", nil)
}

// VerifyOtp completes registration and returns a session token.
func (h *Handler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	h.Logger.Info("USER", fmt.Sprintf("VerifyOtp: email=%s", body.Email))

	session, err := h.Users.VerifyOtp(r.Context(), body.Email, body.Otp)
	if err != nil {
		h.Logger.Error("USER", fmt.Sprintf("VerifyOtp: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "account verified", session)
}

// Login opens a session for a verified account.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	h.Logger.Info("USER", fmt.Sprintf("Login: email=%s", body.Email))

	session, err := h.Users.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.Logger.Error("USER", fmt.Sprintf("Login: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "logged in", session)
}

// Me serves the caller's dashboard view.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	dashboard, err := h.Views.Dashboard(r.Context(), userID)
	if err != nil {
		h.Logger.Error("USER", fmt.Sprintf("Me: user=%s: %v", userID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "dashboard retrieved", dashboard)
}
