// Package application implements the postulación workflow as pure transitions
// over the application collection. Callers own locking and persistence.
package application

import (
	"fmt"

	"github.com/scrim-lobby/internal/domain"
)

// Change records one mutated application so the caller can undo it when the
// write that follows fails.
type Change struct {
	Index    int
	Previous domain.Application
}

// Revert restores the application to its value before the change
func (c Change) Revert(apps []domain.Application) {
	if c.Index >= 0 && c.Index < len(apps) {
		apps[c.Index] = c.Previous
	}
}

// Submit checks eligibility and appends app as a new PENDIENTE application
func Submit(scrim domain.Scrim, apps []domain.Application, app domain.Application) ([]domain.Application, error) {
	if scrim.State != domain.ScrimStateSearching {
		return apps, fmt.Errorf("%w: scrim %s is %s, not accepting applications", domain.ErrInvalidState, scrim.ID, scrim.State)
	}
	if app.UserID == scrim.OrganizerID {
		return apps, fmt.Errorf("%w: organizer cannot apply to own scrim", domain.ErrInvalidState)
	}
	if FindByUser(apps, scrim.ID, app.UserID) >= 0 {
		return apps, fmt.Errorf("%w: user %s already applied to scrim %s", domain.ErrInvalidState, app.UserID, scrim.ID)
	}

	app.ScrimID = scrim.ID
	app.State = domain.ApplicationStatePending
	app.HasConfirmed = false
	return append(apps, app), nil
}

// Accept moves a PENDIENTE application to ACEPTADA while the scrim has room
func Accept(scrim domain.Scrim, apps []domain.Application, applicationID string) (Change, error) {
	idx := Find(apps, scrim.ID, applicationID)
	if idx < 0 {
		return Change{}, fmt.Errorf("%w: application %s", domain.ErrNotFound, applicationID)
	}
	if scrim.State != domain.ScrimStateSearching {
		return Change{}, fmt.Errorf("%w: cannot accept applications while scrim is %s", domain.ErrInvalidState, scrim.State)
	}
	if apps[idx].State != domain.ApplicationStatePending {
		return Change{}, fmt.Errorf("%w: application %s is %s", domain.ErrInvalidState, applicationID, apps[idx].State)
	}
	if CountAccepted(apps, scrim.ID) >= scrim.Capacity {
		return Change{}, fmt.Errorf("%w: scrim %s is full", domain.ErrInvalidState, scrim.ID)
	}

	change := Change{Index: idx, Previous: apps[idx]}
	apps[idx].State = domain.ApplicationStateAccepted
	apps[idx].HasConfirmed = false
	return change, nil
}

// Reject moves a PENDIENTE application to RECHAZADA
func Reject(scrim domain.Scrim, apps []domain.Application, applicationID string) (Change, error) {
	idx := Find(apps, scrim.ID, applicationID)
	if idx < 0 {
		return Change{}, fmt.Errorf("%w: application %s", domain.ErrNotFound, applicationID)
	}
	if scrim.State != domain.ScrimStateSearching && scrim.State != domain.ScrimStateLobbyFormed {
		return Change{}, fmt.Errorf("%w: cannot reject applications while scrim is %s", domain.ErrInvalidState, scrim.State)
	}
	if apps[idx].State != domain.ApplicationStatePending {
		return Change{}, fmt.Errorf("%w: application %s is %s", domain.ErrInvalidState, applicationID, apps[idx].State)
	}

	change := Change{Index: idx, Previous: apps[idx]}
	apps[idx].State = domain.ApplicationStateRejected
	return change, nil
}

// Confirm marks the user's accepted application as confirmed. Confirming again
// is a no-op and reports changed=false.
func Confirm(scrim domain.Scrim, apps []domain.Application, userID string) (change Change, changed bool, err error) {
	if scrim.State != domain.ScrimStateLobbyFormed && scrim.State != domain.ScrimStateConfirmed {
		return Change{}, false, fmt.Errorf("%w: cannot confirm while scrim is %s", domain.ErrInvalidState, scrim.State)
	}

	idx := FindByUser(apps, scrim.ID, userID)
	if idx < 0 {
		return Change{}, false, fmt.Errorf("%w: no application from user %s", domain.ErrNotFound, userID)
	}
	if apps[idx].State != domain.ApplicationStateAccepted {
		return Change{}, false, fmt.Errorf("%w: application %s is %s", domain.ErrInvalidState, apps[idx].ID, apps[idx].State)
	}
	if apps[idx].HasConfirmed {
		return Change{}, false, nil
	}
	if scrim.State == domain.ScrimStateConfirmed {
		return Change{}, false, fmt.Errorf("%w: scrim %s already confirmed", domain.ErrInvalidState, scrim.ID)
	}

	change = Change{Index: idx, Previous: apps[idx]}
	apps[idx].HasConfirmed = true
	return change, true, nil
}

// CountAccepted returns the number of ACEPTADA applications for a scrim
func CountAccepted(apps []domain.Application, scrimID string) int {
	n := 0
	for _, a := range apps {
		if a.ScrimID == scrimID && a.State == domain.ApplicationStateAccepted {
			n++
		}
	}
	return n
}

// CountConfirmed returns the number of ACEPTADA applications that have confirmed
func CountConfirmed(apps []domain.Application, scrimID string) int {
	n := 0
	for _, a := range apps {
		if a.ScrimID == scrimID && a.State == domain.ApplicationStateAccepted && a.HasConfirmed {
			n++
		}
	}
	return n
}

// Find returns the index of an application within a scrim, or -1
func Find(apps []domain.Application, scrimID, applicationID string) int {
	for i, a := range apps {
		if a.ID == applicationID && a.ScrimID == scrimID {
			return i
		}
	}
	return -1
}

// FindByUser returns the index of the user's application to a scrim, or -1
func FindByUser(apps []domain.Application, scrimID, userID string) int {
	for i, a := range apps {
		if a.ScrimID == scrimID && a.UserID == userID {
			return i
		}
	}
	return -1
}

// ForScrim returns copies of every application to a scrim
func ForScrim(apps []domain.Application, scrimID string) []domain.Application {
	out := make([]domain.Application, 0)
	for _, a := range apps {
		if a.ScrimID == scrimID {
			out = append(out, a)
		}
	}
	return out
}
