// Package store provides an in-memory calendar.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/calendar-engine/calendar"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements calendar.TxStore with maps. All values are deep-copied
// on the way in and out so callers never alias stored state.
type Memory struct {
	mu        sync.RWMutex
	events    map[string]*calendar.Event
	rules     map[string]*calendar.RecurrenceRule
	instances map[string]map[string]calendar.EventInstance // eventID -> date -> row
}

func NewMemory() *Memory {
	return &Memory{
		events:    make(map[string]*calendar.Event),
		rules:     make(map[string]*calendar.RecurrenceRule),
		instances: make(map[string]map[string]calendar.EventInstance),
	}
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) GetEvent(_ context.Context, id string) (*calendar.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEventLocked(id), nil
}

func (m *Memory) getEventLocked(id string) *calendar.Event {
	ev, ok := m.events[id]
	if !ok {
		return nil
	}
	out := cloneEvent(ev)
	out.Recurrence = cloneRule(m.rules[id])
	return out
}

func (m *Memory) ListEventsByCalendar(_ context.Context, calendarID string) ([]*calendar.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*calendar.Event
	for id, ev := range m.events {
		if ev.CalendarID == calendarID {
			out = append(out, m.getEventLocked(id))
		}
	}
	return out, nil
}

func (m *Memory) SaveEvent(_ context.Context, ev *calendar.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEventLocked(ev)
}

func (m *Memory) saveEventLocked(ev *calendar.Event) error {
	stored := cloneEvent(ev)
	stored.Recurrence = nil // rule rows are managed via SaveRule/DeleteRule
	m.events[ev.ID] = stored
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteEventLocked(id)
}

func (m *Memory) deleteEventLocked(id string) error {
	delete(m.events, id)
	delete(m.rules, id)
	delete(m.instances, id)
	return nil
}

// =============================================================================
// RULES
// =============================================================================

func (m *Memory) SaveRule(_ context.Context, eventID string, rule *calendar.RecurrenceRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[eventID] = cloneRule(rule)
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, eventID)
	return nil
}

// =============================================================================
// INSTANCES
// =============================================================================

func (m *Memory) GetInstance(_ context.Context, eventID, date string) (*calendar.EventInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.instances[eventID][date]
	if !ok {
		return nil, nil
	}
	out := cloneInstance(row)
	return &out, nil
}

func (m *Memory) ListInstances(_ context.Context, eventID, fromDate, toDate string) ([]calendar.EventInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []calendar.EventInstance
	for date, row := range m.instances[eventID] {
		if date >= fromDate && date <= toDate { // ISO dates sort lexically
			out = append(out, cloneInstance(row))
		}
	}
	return out, nil
}

func (m *Memory) SaveInstance(_ context.Context, inst *calendar.EventInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveInstanceLocked(inst)
}

func (m *Memory) saveInstanceLocked(inst *calendar.EventInstance) error {
	if m.instances[inst.EventID] == nil {
		m.instances[inst.EventID] = make(map[string]calendar.EventInstance)
	}
	m.instances[inst.EventID][inst.InstanceDate] = cloneInstance(*inst)
	return nil
}

func (m *Memory) DeleteInstance(_ context.Context, eventID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances[eventID], date)
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback on error
// =============================================================================

// WithTx executes fn with the store locked, restoring a snapshot if fn
// fails. Good enough for tests; sqlite provides real transactions.
func (m *Memory) WithTx(_ context.Context, fn func(calendar.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	events    map[string]*calendar.Event
	rules     map[string]*calendar.RecurrenceRule
	instances map[string]map[string]calendar.EventInstance
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		events:    make(map[string]*calendar.Event, len(m.events)),
		rules:     make(map[string]*calendar.RecurrenceRule, len(m.rules)),
		instances: make(map[string]map[string]calendar.EventInstance, len(m.instances)),
	}
	for id, ev := range m.events {
		s.events[id] = cloneEvent(ev)
	}
	for id, r := range m.rules {
		s.rules[id] = cloneRule(r)
	}
	for id, rows := range m.instances {
		cp := make(map[string]calendar.EventInstance, len(rows))
		for d, row := range rows {
			cp[d] = cloneInstance(row)
		}
		s.instances[id] = cp
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.events = s.events
	m.rules = s.rules
	m.instances = s.instances
}

// txView runs against the already-locked parent. Reads inside a transaction
// see that transaction's own writes.
type txView struct {
	parent *Memory
}

func (tv *txView) GetEvent(_ context.Context, id string) (*calendar.Event, error) {
	return tv.parent.getEventLocked(id), nil
}

func (tv *txView) ListEventsByCalendar(_ context.Context, calendarID string) ([]*calendar.Event, error) {
	var out []*calendar.Event
	for id, ev := range tv.parent.events {
		if ev.CalendarID == calendarID {
			out = append(out, tv.parent.getEventLocked(id))
		}
	}
	return out, nil
}

func (tv *txView) SaveEvent(_ context.Context, ev *calendar.Event) error {
	return tv.parent.saveEventLocked(ev)
}

func (tv *txView) DeleteEvent(_ context.Context, id string) error {
	return tv.parent.deleteEventLocked(id)
}

func (tv *txView) SaveRule(_ context.Context, eventID string, rule *calendar.RecurrenceRule) error {
	tv.parent.rules[eventID] = cloneRule(rule)
	return nil
}

func (tv *txView) DeleteRule(_ context.Context, eventID string) error {
	delete(tv.parent.rules, eventID)
	return nil
}

func (tv *txView) GetInstance(_ context.Context, eventID, date string) (*calendar.EventInstance, error) {
	row, ok := tv.parent.instances[eventID][date]
	if !ok {
		return nil, nil
	}
	out := cloneInstance(row)
	return &out, nil
}

func (tv *txView) ListInstances(_ context.Context, eventID, fromDate, toDate string) ([]calendar.EventInstance, error) {
	var out []calendar.EventInstance
	for date, row := range tv.parent.instances[eventID] {
		if date >= fromDate && date <= toDate {
			out = append(out, cloneInstance(row))
		}
	}
	return out, nil
}

func (tv *txView) SaveInstance(_ context.Context, inst *calendar.EventInstance) error {
	return tv.parent.saveInstanceLocked(inst)
}

func (tv *txView) DeleteInstance(_ context.Context, eventID, date string) error {
	delete(tv.parent.instances[eventID], date)
	return nil
}

// =============================================================================
// DEEP COPIES
// =============================================================================

func cloneEvent(ev *calendar.Event) *calendar.Event {
	cp := *ev
	cp.ExceptionDates = ev.ExceptionDates.Clone()
	cp.Recurrence = cloneRule(ev.Recurrence)
	return &cp
}

func cloneRule(r *calendar.RecurrenceRule) *calendar.RecurrenceRule {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Count != nil {
		c := *r.Count
		cp.Count = &c
	}
	if r.Until != nil {
		u := *r.Until
		cp.Until = &u
	}
	cp.ByDay = append([]string(nil), r.ByDay...)
	return &cp
}

func cloneInstance(inst calendar.EventInstance) calendar.EventInstance {
	cp := inst
	cp.Start = cloneTime(inst.Start)
	cp.End = cloneTime(inst.End)
	cp.Exception.Title = cloneStr(inst.Exception.Title)
	cp.Exception.Description = cloneStr(inst.Exception.Description)
	cp.Exception.Location = cloneStr(inst.Exception.Location)
	cp.Exception.Color = cloneStr(inst.Exception.Color)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
