package event_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventhub/internal/apperr"
	"eventhub/internal/auth"
	"eventhub/internal/event"
	"eventhub/internal/logger"
	"eventhub/internal/utils"
	"eventhub/internal/views"
)

type Handler struct {
	Events *event.Service
	Views  *views.Service
	Logger *logger.Logger
}

func NewHandler(events *event.Service, viewsSvc *views.Service, log *logger.Logger) *Handler {
	return &Handler{Events: events, Views: viewsSvc, Logger: log}
}

// List serves the cached upcoming-events listing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := event.ParseListQuery(
		r.URL.Query().Get("search"),
		r.URL.Query().Get("tags"),
		r.URL.Query().Get("sort"),
		r.URL.Query().Get("page"),
		r.URL.Query().Get("limit"),
	)
	h.Logger.Debug("API", fmt.Sprintf("List: search=%q tags=%v sort=%s page=%d", q.Search, q.Tags, q.Sort, q.Page))

	list, err := h.Views.ListEvents(r.Context(), q)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("List: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "events retrieved", list)
}

// Detail serves the cached per-viewer event detail view.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	viewerID := auth.UserID(r.Context())
	h.Logger.Debug("API", fmt.Sprintf("Detail: event=%s viewer=%s", eventID, orAnonymous(viewerID)))

	detail, err := h.Views.EventDetail(r.Context(), eventID, viewerID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Detail: event=%s: %v", eventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "event retrieved", detail)
}

// Create registers a new event owned by the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var input event.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Create: organizer=%s title=%q", userID, input.Title))

	result, err := h.Events.Create(r.Context(), userID, input)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Create: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "event created", result)
}

// Delete removes an event. Organizer only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Delete: event=%s caller=%s", eventID, userID))

	if err := h.Events.Delete(r.Context(), eventID, userID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Delete: event=%s: %v", eventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "event deleted", nil)
}

// Join adds the caller to the event's attendee set.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Join: event=%s caller=%s", eventID, userID))

	result, err := h.Events.Join(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Join: event=%s user=%s: %v", eventID, userID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result.Message, result)
}

// Leave removes the caller from the event's attendee set.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("Leave: event=%s caller=%s", eventID, userID))

	result, err := h.Events.Leave(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Leave: event=%s user=%s: %v", eventID, userID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result.Message, result)
}

// Attendees lists the event's attendee set. Organizer only.
func (h *Handler) Attendees(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	h.Logger.Debug("API", fmt.Sprintf("Attendees: event=%s caller=%s", eventID, userID))

	attendees, err := h.Events.Attendees(r.Context(), eventID, userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Attendees: event=%s: %v", eventID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "attendees retrieved", attendees)
}

func orAnonymous(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
