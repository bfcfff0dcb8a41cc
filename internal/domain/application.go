package domain

import (
	"strings"
	"time"
)

// ApplicationState is the state of a player's application to a scrim
type ApplicationState string

const (
	ApplicationStatePending  ApplicationState = "PENDIENTE"
	ApplicationStateAccepted ApplicationState = "ACEPTADA"
	ApplicationStateRejected ApplicationState = "RECHAZADA"
)

// Application is a player's request to join a scrim (postulación)
type Application struct {
	ID              string           `json:"id"`
	ScrimID         string           `json:"scrimId"`
	UserID          string           `json:"userId"`
	State           ApplicationState `json:"state"`
	HasConfirmed    bool             `json:"hasConfirmed"`
	DesiredRole     string           `json:"desiredRole,omitempty"`
	ReportedLatency int              `json:"reportedLatency"`
	AppliedAt       time.Time        `json:"appliedAt"`
}

// ApplyRequest represents a request to apply to a scrim
type ApplyRequest struct {
	DesiredRole     string `json:"desiredRole"`
	ReportedLatency int    `json:"reportedLatency"`
}

// Validate checks the applicant supplied fields
func (r *ApplyRequest) Validate() error {
	if strings.TrimSpace(r.DesiredRole) == "" {
		return ErrInvalidRequest
	}
	if r.ReportedLatency < 0 {
		return ErrInvalidRequest
	}
	return nil
}
