/*
access.go - Role resolution and the AccessGate boundary

PURPOSE:
  Authentication, sharing, and ownership management live outside this
  engine. The engine only needs an answer to one question: what role does
  this user hold on this calendar? AccessGate is that boundary, and
  ResolveRole is the pure function a gate implementation composes from an
  owner id plus share records, so authorization stays testable without a
  query layer.

CREATOR ELEVATION:
  Independently of the calendar role, the creator of an event is granted
  edit-equivalent capability on that event.
*/
package calendar

import "context"

// Role is a capability level on a calendar.
type Role string

const (
	RoleOwner Role = "owner"
	RoleEdit  Role = "edit"
	RoleView  Role = "view"
	RoleNone  Role = "none"

	// RoleCreator is never returned by a gate. The engine assigns it when
	// the caller created the event being operated on.
	RoleCreator Role = "creator"
)

// CanEdit reports whether the role permits writes.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEdit || r == RoleCreator
}

// CanView reports whether the role permits reads. A "none" role is a hard
// denial on the read path, not silent filtering.
func (r Role) CanView() bool {
	return r != RoleNone && r != ""
}

// AccessGate resolves a user's role on a calendar. Implementations are
// external collaborators (share tables, ACL services, static config).
type AccessGate interface {
	ResolveRole(ctx context.Context, userID, calendarID string) (Role, error)
}

// ResolveRole computes a role from an owner id and share records.
// Gate implementations are expected to delegate here after fetching rows.
func ResolveRole(userID, ownerID string, shares map[string]Role) Role {
	if userID == "" {
		return RoleNone
	}
	if userID == ownerID {
		return RoleOwner
	}
	if role, ok := shares[userID]; ok && role.CanView() {
		return role
	}
	return RoleNone
}

// EffectiveRole applies creator elevation on top of a calendar role.
func EffectiveRole(role Role, ev *Event, userID string) Role {
	if ev != nil && userID != "" && ev.CreatedBy == userID && !role.CanEdit() {
		return RoleCreator
	}
	return role
}
