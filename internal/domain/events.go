package domain

import "time"

// Event type names
const (
	EventScrimCreated         = "scrim.created"
	EventApplicationSubmitted = "application.submitted"
	EventApplicationAccepted  = "application.accepted"
	EventApplicationRejected  = "application.rejected"
	EventLobbyFormed          = "scrim.lobby_formed"
	EventScrimConfirmed       = "scrim.confirmed"
	EventScrimStarted         = "scrim.started"
	EventScrimCancelled       = "scrim.cancelled"
	EventScrimFinished        = "scrim.finished"
)

// Event is an immutable fact about a scrim transition
type Event interface {
	Type() string
	Header() EventHeader
}

// EventHeader carries the scrim snapshot fields every event shares.
// Events never hold the scrim aggregate itself.
type EventHeader struct {
	ScrimID     string    `json:"scrimId"`
	OrganizerID string    `json:"organizerId"`
	Game        string    `json:"game"`
	ScheduledAt time.Time `json:"scheduledAt"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Header returns the shared event fields
func (h EventHeader) Header() EventHeader {
	return h
}

// NewEventHeader snapshots a scrim at the moment of a transition
func NewEventHeader(s Scrim, now time.Time) EventHeader {
	return EventHeader{
		ScrimID:     s.ID,
		OrganizerID: s.OrganizerID,
		Game:        s.Game,
		ScheduledAt: s.ScheduledAt,
		OccurredAt:  now.UTC(),
	}
}

// ScrimCreated is published when an organizer opens a scrim
type ScrimCreated struct {
	EventHeader
	Region  string `json:"region,omitempty"`
	RankMin string `json:"rankMin,omitempty"`
	RankMax string `json:"rankMax,omitempty"`
}

func (ScrimCreated) Type() string { return EventScrimCreated }

// ApplicationSubmitted is published when a player applies
type ApplicationSubmitted struct {
	EventHeader
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
}

func (ApplicationSubmitted) Type() string { return EventApplicationSubmitted }

// ApplicationAccepted is published when the organizer accepts an applicant
type ApplicationAccepted struct {
	EventHeader
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
}

func (ApplicationAccepted) Type() string { return EventApplicationAccepted }

// ApplicationRejected is published when the organizer rejects an applicant
type ApplicationRejected struct {
	EventHeader
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
}

func (ApplicationRejected) Type() string { return EventApplicationRejected }

// LobbyFormed is published once, when the accepted count first reaches capacity
type LobbyFormed struct {
	EventHeader
}

func (LobbyFormed) Type() string { return EventLobbyFormed }

// ScrimConfirmed is published once, when every accepted player has confirmed
type ScrimConfirmed struct {
	EventHeader
}

func (ScrimConfirmed) Type() string { return EventScrimConfirmed }

// ScrimStarted is published when a confirmed scrim goes live
type ScrimStarted struct {
	EventHeader
	StartedBySystem bool `json:"startedBySystem"`
}

func (ScrimStarted) Type() string { return EventScrimStarted }

// ScrimCancelled is published when the organizer cancels
type ScrimCancelled struct {
	EventHeader
}

func (ScrimCancelled) Type() string { return EventScrimCancelled }

// ScrimFinished is published when the organizer finalizes
type ScrimFinished struct {
	EventHeader
}

func (ScrimFinished) Type() string { return EventScrimFinished }

// EventTypes lists every event type in publication order of a full lifecycle
func EventTypes() []string {
	return []string{
		EventScrimCreated,
		EventApplicationSubmitted,
		EventApplicationAccepted,
		EventApplicationRejected,
		EventLobbyFormed,
		EventScrimConfirmed,
		EventScrimStarted,
		EventScrimCancelled,
		EventScrimFinished,
	}
}
