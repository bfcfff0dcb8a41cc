package domain

import (
	"fmt"
	"strings"
)

// Notification channels a user can opt into
const (
	ChannelEmail   = "EMAIL"
	ChannelPush    = "PUSH"
	ChannelDiscord = "DISCORD"
)

// User roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a registered player. Accounts are created by the account service;
// this service edits only the profile and the preferences.
type User struct {
	ID             string            `json:"id"`
	Username       string            `json:"username"`
	Email          string            `json:"email"`
	Region         string            `json:"region,omitempty"`
	Role           string            `json:"role,omitempty"`
	RankByGame     map[string]string `json:"rankByGame,omitempty"`
	PreferredRoles []string          `json:"preferredRoles,omitempty"`
	Preferences    *Preferences      `json:"preferences,omitempty"`
}

// IsAdmin reports whether the user may moderate feedback
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

// Preferences holds a user's alert switches and default search filters
type Preferences struct {
	Channels          []string `json:"channels"`
	ScrimAlerts       bool     `json:"scrimAlerts"`
	ApplicationAlerts bool     `json:"applicationAlerts"`
	Reminders         bool     `json:"reminders"`
	SearchGame        string   `json:"searchGame,omitempty"`
	SearchRegion      string   `json:"searchRegion,omitempty"`
	SearchRankMin     string   `json:"searchRankMin,omitempty"`
	SearchRankMax     string   `json:"searchRankMax,omitempty"`
}

// DefaultPreferences returns the preferences a new account starts with
func DefaultPreferences() *Preferences {
	return &Preferences{
		Channels:          []string{ChannelEmail},
		ScrimAlerts:       true,
		ApplicationAlerts: true,
		Reminders:         true,
	}
}

// HasChannel reports whether the channel is enabled, ignoring case
func (p *Preferences) HasChannel(channel string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Channels {
		if strings.EqualFold(c, channel) {
			return true
		}
	}
	return false
}

// WantsScrimAlerts reports whether lifecycle emails should reach this user
func (u *User) WantsScrimAlerts() bool {
	return u.Preferences != nil && u.Preferences.ScrimAlerts && u.Preferences.HasChannel(ChannelEmail)
}

// WantsReminders reports whether pre-match reminder emails should reach this user
func (u *User) WantsReminders() bool {
	return u.Preferences != nil && u.Preferences.Reminders && u.Preferences.HasChannel(ChannelEmail)
}

// MatchesSearch reports whether a newly created scrim fits the user's default
// search filters. Unset filters match anything.
func (u *User) MatchesSearch(s Scrim) bool {
	p := u.Preferences
	if p == nil {
		return false
	}
	if p.SearchGame != "" && !strings.EqualFold(p.SearchGame, s.Game) {
		return false
	}
	if p.SearchRegion != "" && !strings.EqualFold(p.SearchRegion, s.Region) {
		return false
	}
	if p.SearchRankMin != "" && !strings.EqualFold(p.SearchRankMin, s.RankMin) {
		return false
	}
	if p.SearchRankMax != "" && !strings.EqualFold(p.SearchRankMax, s.RankMax) {
		return false
	}
	return true
}

// ProfileUpdateRequest replaces the public profile of a user
type ProfileUpdateRequest struct {
	Username       string            `json:"username"`
	Region         string            `json:"region"`
	RankByGame     map[string]string `json:"rankByGame,omitempty"`
	PreferredRoles []string          `json:"preferredRoles,omitempty"`
}

// Validate checks the username length and region
func (r *ProfileUpdateRequest) Validate() error {
	n := len([]rune(strings.TrimSpace(r.Username)))
	if n < 3 || n > 30 {
		return fmt.Errorf("%w: username must have between 3 and 30 characters", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Region) == "" {
		return fmt.Errorf("%w: region is required", ErrInvalidRequest)
	}
	return nil
}

// PreferencesUpdateRequest replaces a user's alert switches and search
// defaults. The switches are pointers so that omitting one is an error
// rather than a silent false.
type PreferencesUpdateRequest struct {
	Channels          []string `json:"channels"`
	ScrimAlerts       *bool    `json:"scrimAlerts"`
	ApplicationAlerts *bool    `json:"applicationAlerts"`
	Reminders         *bool    `json:"reminders"`
	SearchGame        string   `json:"searchGame,omitempty"`
	SearchRegion      string   `json:"searchRegion,omitempty"`
	SearchRankMin     string   `json:"searchRankMin,omitempty"`
	SearchRankMax     string   `json:"searchRankMax,omitempty"`
}

// Validate requires every switch and known channels only
func (r *PreferencesUpdateRequest) Validate() error {
	if r.Channels == nil {
		return fmt.Errorf("%w: channels is required (may be empty)", ErrInvalidRequest)
	}
	for _, c := range r.Channels {
		switch strings.ToUpper(strings.TrimSpace(c)) {
		case ChannelEmail, ChannelPush, ChannelDiscord:
		default:
			return fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, c)
		}
	}
	if r.ScrimAlerts == nil || r.ApplicationAlerts == nil || r.Reminders == nil {
		return fmt.Errorf("%w: scrimAlerts, applicationAlerts and reminders are required", ErrInvalidRequest)
	}
	return nil
}

// ToPreferences builds the preferences the request describes. Call Validate first.
func (r *PreferencesUpdateRequest) ToPreferences() *Preferences {
	channels := make([]string, 0, len(r.Channels))
	seen := make(map[string]bool, len(r.Channels))
	for _, c := range r.Channels {
		c = strings.ToUpper(strings.TrimSpace(c))
		if seen[c] {
			continue
		}
		seen[c] = true
		channels = append(channels, c)
	}
	return &Preferences{
		Channels:          channels,
		ScrimAlerts:       *r.ScrimAlerts,
		ApplicationAlerts: *r.ApplicationAlerts,
		Reminders:         *r.Reminders,
		SearchGame:        strings.TrimSpace(r.SearchGame),
		SearchRegion:      strings.TrimSpace(r.SearchRegion),
		SearchRankMin:     strings.TrimSpace(r.SearchRankMin),
		SearchRankMax:     strings.TrimSpace(r.SearchRankMax),
	}
}
