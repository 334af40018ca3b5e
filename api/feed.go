/*
feed.go - Read-only ICS export of the merged occurrence view

PURPOSE:
  Lets external calendar clients subscribe to a calendar's merged view.
  Export only; ICS ingestion is out of scope.

WINDOW:
  Subscribing clients poll without window parameters, so the feed covers a
  fixed horizon around now: 30 days back, 180 days forward. Explicit from/to
  query parameters override it.

FIDELITY:
  Each merged occurrence becomes one VEVENT. Overrides are already folded
  in by the merger, so the feed needs no RRULE/EXDATE emission; clients see
  the same flattened view API consumers do.

SEE ALSO:
  - calendar/merge.go: Produces the occurrences exported here
*/
package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/go-chi/chi/v5"
)

const (
	feedLookBehind = 30 * 24 * time.Hour
	feedLookAhead  = 180 * 24 * time.Hour
)

// CalendarFeed serves the merged occurrences of one calendar as an ICS feed.
func (h *Handler) CalendarFeed(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return
	}
	calID := chi.URLParam(r, "id")

	now := h.Service.Clock().UTC()
	from := now.Add(-feedLookBehind)
	to := now.Add(feedLookAhead)
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from parameter, must be RFC3339", err)
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to parameter, must be RFC3339", err)
			return
		}
		to = t
	}

	occs, err := h.Service.OccurrencesInWindow(r.Context(), uid, []string{calID}, from, to)
	if err != nil {
		writeDomainError(w, "Failed to build feed", err)
		return
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//warp//calendar-engine//EN")

	for _, occ := range occs {
		vevent := ical.NewComponent(ical.CompEvent)
		vevent.Props.SetText(ical.PropUID, occ.ID)
		vevent.Props.SetText(ical.PropSummary, occ.Title)
		if occ.Description != "" {
			vevent.Props.SetText(ical.PropDescription, occ.Description)
		}
		if occ.Location != "" {
			vevent.Props.SetText(ical.PropLocation, occ.Location)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)

		if occ.IsAllDay {
			start := ical.NewProp(ical.PropDateTimeStart)
			start.SetDate(occ.Start.UTC())
			vevent.Props.Set(start)
			end := ical.NewProp(ical.PropDateTimeEnd)
			end.SetDate(occ.End.UTC())
			vevent.Props.Set(end)
		} else {
			vevent.Props.SetDateTime(ical.PropDateTimeStart, occ.Start.UTC())
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, occ.End.UTC())
		}

		cal.Children = append(cal.Children, vevent)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode feed", err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
