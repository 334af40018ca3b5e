/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

RULE TRI-STATE:
  UpdateEventRequest carries "rule" as json.RawMessage so the handler can
  distinguish absent (keep), null (remove), and object (replace). A plain
  pointer cannot tell absent from null.

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar/types.go: Domain counterparts
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/calendar-engine/calendar"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RuleDTO represents a recurrence rule in API traffic. On input either the
// structured fields or the single-line "text" form may be supplied; when
// both are present, text wins.
type RuleDTO struct {
	Frequency string   `json:"frequency,omitempty"`
	Interval  int      `json:"interval,omitempty"`
	Count     *int     `json:"count,omitempty"`
	Until     *string  `json:"until,omitempty"`
	ByDay     []string `json:"byDay,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// EventDTO represents an event (series or standalone) in API responses.
type EventDTO struct {
	ID             string   `json:"id"`
	CalendarID     string   `json:"calendarId"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Location       string   `json:"location,omitempty"`
	StartTime      string   `json:"startTime"`
	EndTime        string   `json:"endTime"`
	IsAllDay       bool     `json:"isAllDay"`
	Color          string   `json:"color,omitempty"`
	Visibility     string   `json:"visibility"`
	Status         string   `json:"status"`
	CreatedBy      string   `json:"createdBy,omitempty"`
	Rule           *RuleDTO `json:"rule,omitempty"`
	ExceptionDates []string `json:"exceptionDates"`
	Version        int      `json:"version"`
	CreatedAt      string   `json:"createdAt,omitempty"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

// OccurrenceDTO represents one merged occurrence in API responses.
type OccurrenceDTO struct {
	ID                  string `json:"id"`
	EventID             string `json:"eventId"`
	CalendarID          string `json:"calendarId"`
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	Location            string `json:"location,omitempty"`
	Color               string `json:"color,omitempty"`
	Visibility          string `json:"visibility"`
	Status              string `json:"status"`
	IsAllDay            bool   `json:"isAllDay"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
	IsRecurringInstance bool   `json:"isRecurringInstance"`
	IsException         bool   `json:"isException"`
	InstanceDate        string `json:"instanceDate,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateEventRequest is the request to create an event.
type CreateEventRequest struct {
	CalendarID  string   `json:"calendarId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	IsAllDay    bool     `json:"isAllDay"`
	Color       string   `json:"color"`
	Visibility  string   `json:"visibility"`
	Status      string   `json:"status"`
	Rule        *RuleDTO `json:"rule"`
}

// UpdateEventRequest is the partial series update. Absent fields are kept.
type UpdateEventRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	IsAllDay    *bool   `json:"isAllDay"`
	Color       *string `json:"color"`
	Visibility  *string `json:"visibility"`
	Status      *string `json:"status"`

	// Rule tri-state: absent = keep, null = remove, object = replace.
	Rule json.RawMessage `json:"rule"`
}

// UpdateInstanceRequest is the partial edit of a single occurrence.
type UpdateInstanceRequest struct {
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	Color       *string `json:"color"`
	Status      *string `json:"status"`
}

// =============================================================================
// DOMAIN <-> DTO CONVERSION
// =============================================================================

func toEventDTO(ev *calendar.Event) EventDTO {
	dto := EventDTO{
		ID:             ev.ID,
		CalendarID:     ev.CalendarID,
		Title:          ev.Title,
		Description:    ev.Description,
		Location:       ev.Location,
		StartTime:      ev.Start.UTC().Format(time.RFC3339),
		EndTime:        ev.End.UTC().Format(time.RFC3339),
		IsAllDay:       ev.IsAllDay,
		Color:          ev.Color,
		Visibility:     string(ev.Visibility),
		Status:         string(ev.Status),
		CreatedBy:      ev.CreatedBy,
		ExceptionDates: ev.ExceptionDates.Dates(),
		Version:        ev.Version,
		CreatedAt:      ev.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      ev.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if ev.Recurrence != nil {
		dto.Rule = toRuleDTO(ev.Recurrence)
	}
	return dto
}

func toRuleDTO(r *calendar.RecurrenceRule) *RuleDTO {
	dto := &RuleDTO{
		Frequency: string(r.Frequency),
		Interval:  r.Interval,
		ByDay:     r.ByDay,
		Text:      r.Text(),
	}
	if r.Count != nil {
		c := *r.Count
		dto.Count = &c
	}
	if r.Until != nil {
		u := r.Until.UTC().Format(time.RFC3339)
		dto.Until = &u
	}
	return dto
}

// toRule converts an incoming RuleDTO to the domain rule. Text form wins
// over the structured fields when both are present.
func toRule(dto *RuleDTO) (*calendar.RecurrenceRule, error) {
	if dto == nil {
		return nil, nil
	}
	if dto.Text != "" {
		return calendar.ParseRuleText(dto.Text)
	}

	rule := &calendar.RecurrenceRule{
		Frequency: calendar.Frequency(dto.Frequency),
		Interval:  dto.Interval,
		ByDay:     dto.ByDay,
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if dto.Count != nil {
		c := *dto.Count
		rule.Count = &c
	}
	if dto.Until != nil {
		t, err := time.Parse(time.RFC3339, *dto.Until)
		if err != nil {
			return nil, &calendar.ValidationError{Field: "rule.until", Reason: "must be RFC3339"}
		}
		u := t.UTC()
		rule.Until = &u
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

func toOccurrenceDTO(occ calendar.Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		ID:                  occ.ID,
		EventID:             occ.OriginalEventID,
		CalendarID:          occ.CalendarID,
		Title:               occ.Title,
		Description:         occ.Description,
		Location:            occ.Location,
		Color:               occ.Color,
		Visibility:          string(occ.Visibility),
		Status:              string(occ.Status),
		IsAllDay:            occ.IsAllDay,
		StartTime:           occ.Start.UTC().Format(time.RFC3339),
		EndTime:             occ.End.UTC().Format(time.RFC3339),
		IsRecurringInstance: occ.IsRecurringInstance,
		IsException:         occ.IsException,
		InstanceDate:        occ.InstanceDate,
	}
}
