/*
handlers.go - HTTP API handlers for the calendar engine

PURPOSE:
  Exposes the calendar engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Occurrences:
    GET    /api/occurrences?calendars=a,b&from=...&to=...  Merged window view

  Events:
    POST   /api/events                       Create event (optional rule)
    GET    /api/events/{id}                  Event by id, or occurrence by
                                             {eventId}_{date}
    PUT    /api/events/{id}                  Series update (rule tri-state)
    PUT    /api/events/{id}/instances/{date} Single-occurrence edit
    DELETE /api/events/{id}?scope=this|future|all

  Feeds:
    GET    /api/calendars/{id}/feed.ics      ICS export (feed.go)

IDENTITY:
  The caller arrives as the X-User-ID header. Authentication itself is an
  external collaborator; the header is the boundary contract. Requests
  without it are rejected with 401.

ERROR HANDLING:
  Domain errors map onto HTTP statuses in errorStatus():
  - 400: Validation errors, malformed rules
  - 403: Insufficient role
  - 404: Event / instance not found
  - 409: Instance operation on a non-recurring event
  - 500: Storage failures (always fully rolled back)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - calendar/service.go: Domain entry point
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/calendar-engine/calendar"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *calendar.Service
}

// NewHandler creates a new handler around the given service.
func NewHandler(svc *calendar.Service) *Handler {
	return &Handler{Service: svc}
}

// userID extracts the caller identity. Empty means unauthenticated.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

// =============================================================================
// OCCURRENCE HANDLERS
// =============================================================================

// ListOccurrences returns the merged occurrence view for a window across
// one or more calendars.
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	calParam := strings.TrimSpace(r.URL.Query().Get("calendars"))
	if calParam == "" {
		writeError(w, http.StatusBadRequest, "Missing calendars parameter", nil)
		return
	}
	var calendars []string
	for _, c := range strings.Split(calParam, ",") {
		if c = strings.TrimSpace(c); c != "" {
			calendars = append(calendars, c)
		}
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from parameter, must be RFC3339", err)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to parameter, must be RFC3339", err)
		return
	}

	occs, err := h.Service.OccurrencesInWindow(r.Context(), uid, calendars, from, to)
	if err != nil {
		writeDomainError(w, "Failed to list occurrences", err)
		return
	}

	dtos := make([]OccurrenceDTO, len(occs))
	for i, occ := range occs {
		dtos[i] = toOccurrenceDTO(occ)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// CreateEvent creates a standalone event or a recurring series.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid startTime, must be RFC3339", err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid endTime, must be RFC3339", err)
		return
	}

	rule, err := toRule(req.Rule)
	if err != nil {
		writeDomainError(w, "Invalid recurrence rule", err)
		return
	}

	ev := calendar.Event{
		CalendarID:  req.CalendarID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start:       start,
		End:         end,
		IsAllDay:    req.IsAllDay,
		Color:       req.Color,
		Visibility:  calendar.Visibility(req.Visibility),
		Status:      calendar.EventStatus(req.Status),
		Recurrence:  rule,
	}

	created, err := h.Service.CreateSeries(r.Context(), uid, ev)
	if err != nil {
		writeDomainError(w, "Failed to create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(created))
}

// GetEvent returns an event by series id, or a single merged occurrence when
// the id has the {eventId}_{date} form.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	id := chi.URLParam(r, "id")

	if _, _, ok := calendar.SplitOccurrenceID(id); ok {
		occ, err := h.Service.GetOccurrence(r.Context(), uid, id)
		if err != nil {
			writeDomainError(w, "Failed to get occurrence", err)
			return
		}
		writeJSON(w, http.StatusOK, toOccurrenceDTO(*occ))
		return
	}

	ev, err := h.Service.GetEvent(r.Context(), uid, id)
	if err != nil {
		writeDomainError(w, "Failed to get event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// UpdateEvent applies a partial update to a series. The "rule" field is
// tri-state: absent keeps the current rule, null removes it, an object
// replaces it.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	id := chi.URLParam(r, "id")

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch, err := toEventPatch(req)
	if err != nil {
		writeDomainError(w, "Invalid event patch", err)
		return
	}

	var change calendar.RuleChange
	if len(req.Rule) > 0 {
		if string(req.Rule) == "null" {
			change.Clear = true
		} else {
			var dto RuleDTO
			if err := json.Unmarshal(req.Rule, &dto); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid rule", err)
				return
			}
			rule, err := toRule(&dto)
			if err != nil {
				writeDomainError(w, "Invalid recurrence rule", err)
				return
			}
			change.Set = rule
		}
	}

	ev, err := h.Service.UpdateSeries(r.Context(), uid, id, patch, change)
	if err != nil {
		writeDomainError(w, "Failed to update event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// UpdateInstance edits a single occurrence of a recurring event.
func (h *Handler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	id := chi.URLParam(r, "id")
	date := chi.URLParam(r, "date")

	var req UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	patch, err := toInstancePatch(req)
	if err != nil {
		writeDomainError(w, "Invalid instance patch", err)
		return
	}

	occ, err := h.Service.UpdateInstance(r.Context(), uid, id, date, patch)
	if err != nil {
		writeDomainError(w, "Failed to update instance", err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrenceDTO(*occ))
}

// DeleteEvent deletes at scope this, future, or all. The id may address an
// occurrence directly ({eventId}_{date}), implying scope=this.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	id := chi.URLParam(r, "id")

	scope, err := calendar.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeDomainError(w, "Invalid scope", err)
		return
	}

	if err := h.Service.DeleteOccurrence(r.Context(), uid, id, scope); err != nil {
		writeDomainError(w, "Failed to delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PATCH CONVERSION
// =============================================================================

func toEventPatch(req UpdateEventRequest) (calendar.EventPatch, error) {
	patch := calendar.EventPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Color:       req.Color,
		IsAllDay:    req.IsAllDay,
	}
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return patch, &calendar.ValidationError{Field: "startTime", Reason: "must be RFC3339"}
		}
		patch.Start = &t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return patch, &calendar.ValidationError{Field: "endTime", Reason: "must be RFC3339"}
		}
		patch.End = &t
	}
	if req.Visibility != nil {
		v := calendar.Visibility(*req.Visibility)
		patch.Visibility = &v
	}
	if req.Status != nil {
		st := calendar.EventStatus(*req.Status)
		patch.Status = &st
	}
	return patch, nil
}

func toInstancePatch(req UpdateInstanceRequest) (calendar.InstancePatch, error) {
	patch := calendar.InstancePatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Color:       req.Color,
	}
	if req.StartTime != nil {
		t, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return patch, &calendar.ValidationError{Field: "startTime", Reason: "must be RFC3339"}
		}
		patch.Start = &t
	}
	if req.EndTime != nil {
		t, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return patch, &calendar.ValidationError{Field: "endTime", Reason: "must be RFC3339"}
		}
		patch.End = &t
	}
	if req.Status != nil {
		st := calendar.EventStatus(*req.Status)
		patch.Status = &st
	}
	return patch, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// errorStatus maps a domain error onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, calendar.ErrValidation),
		errors.Is(err, calendar.ErrRecurrenceParse):
		return http.StatusBadRequest
	case errors.Is(err, calendar.ErrPermissionDenied):
		return http.StatusForbidden
	case calendar.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, calendar.ErrNotRecurring):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, errorStatus(err), message, err)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]interface{}{"error": message}
	if err != nil {
		resp["detail"] = err.Error()
	}
	writeJSON(w, status, resp)
}
