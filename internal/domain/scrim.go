package domain

import (
	"strings"
	"time"
)

// ScrimState represents a step of the scrim lifecycle
type ScrimState string

const (
	ScrimStateSearching   ScrimState = "BUSCANDO"
	ScrimStateLobbyFormed ScrimState = "LOBBY_ARMADO"
	ScrimStateConfirmed   ScrimState = "CONFIRMADO"
	ScrimStateInProgress  ScrimState = "EN_JUEGO"
	ScrimStateFinished    ScrimState = "FINALIZADO"
	ScrimStateCancelled   ScrimState = "CANCELADO"
)

// Terminal reports whether no further lifecycle operation is accepted
func (s ScrimState) Terminal() bool {
	return s == ScrimStateFinished || s == ScrimStateCancelled
}

// Listed reports whether scrims in this state appear in the public listing
func (s ScrimState) Listed() bool {
	return s == ScrimStateSearching || s == ScrimStateLobbyFormed
}

// Cancellable reports whether the organizer may still cancel
func (s ScrimState) Cancellable() bool {
	switch s {
	case ScrimStateSearching, ScrimStateLobbyFormed, ScrimStateConfirmed:
		return true
	}
	return false
}

// Format is the team format of a scrim
type Format string

const (
	Format1v1 Format = "1v1"
	Format2v2 Format = "2v2"
	Format3v3 Format = "3v3"
	Format5v5 Format = "5v5"
)

// Mode is the competitive mode of a scrim
type Mode string

const (
	ModeRanked   Mode = "RANKED"
	ModeCasual   Mode = "CASUAL"
	ModePractice Mode = "PRACTICA"
)

// MatchmakingStrategy records how the organizer intends to pick candidates.
// It is informational only: acceptance is always the organizer's call.
type MatchmakingStrategy string

const (
	MatchmakingByMMR     MatchmakingStrategy = "BY_MMR"
	MatchmakingByLatency MatchmakingStrategy = "BY_LATENCY"
	MatchmakingByHistory MatchmakingStrategy = "BY_HISTORY"
)

// Scrim is a scheduled practice match with a fixed participant capacity
type Scrim struct {
	ID                  string              `json:"id"`
	OrganizerID         string              `json:"organizerId"`
	State               ScrimState          `json:"state"`
	Capacity            int                 `json:"capacity"`
	ScheduledAt         time.Time           `json:"scheduledAt"`
	ReminderSent        bool                `json:"reminderSent"`
	Game                string              `json:"game"`
	Format              Format              `json:"format,omitempty"`
	Region              string              `json:"region,omitempty"`
	RankMin             string              `json:"rankMin,omitempty"`
	RankMax             string              `json:"rankMax,omitempty"`
	MaxLatency          int                 `json:"maxLatency,omitempty"`
	DurationMinutes     int                 `json:"durationMinutes,omitempty"`
	Mode                Mode                `json:"mode,omitempty"`
	Description         string              `json:"description,omitempty"`
	MatchmakingStrategy MatchmakingStrategy `json:"matchmakingStrategy,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// CreateScrimRequest represents a request to open a new scrim
type CreateScrimRequest struct {
	Game                string              `json:"game"`
	Format              Format              `json:"format,omitempty"`
	Region              string              `json:"region,omitempty"`
	RankMin             string              `json:"rankMin,omitempty"`
	RankMax             string              `json:"rankMax,omitempty"`
	MaxLatency          int                 `json:"maxLatency,omitempty"`
	ScheduledAt         time.Time           `json:"scheduledAt"`
	DurationMinutes     int                 `json:"durationMinutes,omitempty"`
	Mode                Mode                `json:"mode,omitempty"`
	Description         string              `json:"description,omitempty"`
	Capacity            int                 `json:"capacity"`
	MatchmakingStrategy MatchmakingStrategy `json:"matchmakingStrategy,omitempty"`
}

// Validate checks the fields the lifecycle depends on
func (r *CreateScrimRequest) Validate() error {
	if strings.TrimSpace(r.Game) == "" {
		return ErrInvalidRequest
	}
	if r.Capacity < 1 {
		return ErrInvalidRequest
	}
	if r.ScheduledAt.IsZero() {
		return ErrInvalidRequest
	}
	if r.MaxLatency < 0 || r.DurationMinutes < 0 {
		return ErrInvalidRequest
	}
	return nil
}

// ToScrim converts the request into a new scrim in the initial state
func (r *CreateScrimRequest) ToScrim(id, organizerID string, now time.Time) Scrim {
	scrim := Scrim{
		ID:                  id,
		OrganizerID:         organizerID,
		State:               ScrimStateSearching,
		Capacity:            r.Capacity,
		ScheduledAt:         r.ScheduledAt.UTC(),
		Game:                strings.TrimSpace(r.Game),
		Format:              r.Format,
		Region:              r.Region,
		RankMin:             r.RankMin,
		RankMax:             r.RankMax,
		MaxLatency:          r.MaxLatency,
		DurationMinutes:     r.DurationMinutes,
		Mode:                r.Mode,
		Description:         r.Description,
		MatchmakingStrategy: r.MatchmakingStrategy,
		CreatedAt:           now.UTC(),
	}

	// Apply defaults
	if scrim.Mode == "" {
		scrim.Mode = ModeCasual
	}
	if scrim.MatchmakingStrategy == "" {
		scrim.MatchmakingStrategy = MatchmakingByMMR
	}

	return scrim
}

// ScrimFilter narrows the public scrim listing. Zero values match everything.
type ScrimFilter struct {
	Game       string
	Region     string
	RankMin    string
	RankMax    string
	MaxLatency int
	Format     Format
	Date       time.Time
}

// Matches reports whether a scrim satisfies every set filter
func (f ScrimFilter) Matches(s Scrim) bool {
	if f.Game != "" && !strings.EqualFold(s.Game, f.Game) {
		return false
	}
	if f.Region != "" && !strings.EqualFold(s.Region, f.Region) {
		return false
	}
	if f.RankMin != "" && !strings.EqualFold(s.RankMin, f.RankMin) {
		return false
	}
	if f.RankMax != "" && !strings.EqualFold(s.RankMax, f.RankMax) {
		return false
	}
	if f.MaxLatency > 0 && (s.MaxLatency == 0 || s.MaxLatency > f.MaxLatency) {
		return false
	}
	if f.Format != "" && s.Format != f.Format {
		return false
	}
	if !f.Date.IsZero() {
		y1, m1, d1 := s.ScheduledAt.UTC().Date()
		y2, m2, d2 := f.Date.UTC().Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	return true
}

// MyScrim pairs a scrim with the caller's relation to it
type MyScrim struct {
	Scrim            Scrim            `json:"scrim"`
	Organizer        bool             `json:"organizer"`
	ApplicationState ApplicationState `json:"applicationState,omitempty"`
}
