package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/store"
)

// UserDirectory reads the users collection and edits profiles and preferences
type UserDirectory struct {
	store  store.Backend
	logger *slog.Logger

	mu sync.Mutex
}

// NewUserDirectory creates a new user directory
func NewUserDirectory(backend store.Backend, logger *slog.Logger) *UserDirectory {
	return &UserDirectory{store: backend, logger: logger}
}

// FindUserByID returns a user by ID
func (d *UserDirectory) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == userID {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
}

// ListUsers returns every known user
func (d *UserDirectory) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := store.ReadAll[domain.User](d.store, domain.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	return users, nil
}

// UpdateProfile replaces the user's public profile. Usernames are unique
// ignoring case.
func (d *UserDirectory) UpdateProfile(ctx context.Context, userID string, req domain.ProfileUpdateRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)

	var updated domain.User
	err := d.update(userID, func(users []domain.User, idx int) error {
		for i := range users {
			if i != idx && strings.EqualFold(users[i].Username, username) {
				return fmt.Errorf("%w: username %q is taken", domain.ErrConflict, username)
			}
		}
		u := &users[idx]
		u.Username = username
		u.Region = strings.TrimSpace(req.Region)
		u.RankByGame = req.RankByGame
		u.PreferredRoles = req.PreferredRoles
		updated = *u
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "profile updated", "user_id", userID, "username", username)
	return &updated, nil
}

// UpdatePreferences replaces the user's notification switches and search defaults
func (d *UserDirectory) UpdatePreferences(ctx context.Context, userID string, req domain.PreferencesUpdateRequest) (*domain.Preferences, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	prefs := req.ToPreferences()

	err := d.update(userID, func(users []domain.User, idx int) error {
		users[idx].Preferences = prefs
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.InfoContext(ctx, "preferences updated",
		"user_id", userID,
		"channels", prefs.Channels,
		"scrim_alerts", prefs.ScrimAlerts,
		"reminders", prefs.Reminders,
	)
	return prefs, nil
}

// update runs mutate on the user's record and persists the collection
func (d *UserDirectory) update(userID string, mutate func(users []domain.User, idx int) error) error {
	if userID == "" {
		return fmt.Errorf("%w: operation requires a user", domain.ErrUnauthorized)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := store.ReadAll[domain.User](d.store, domain.CollectionUsers)
	if err != nil {
		return fmt.Errorf("reading users: %w", err)
	}
	idx := -1
	for i := range users {
		if users[i].ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}

	if err := mutate(users, idx); err != nil {
		return err
	}
	if err := store.WriteAll(d.store, domain.CollectionUsers, users); err != nil {
		return fmt.Errorf("saving user %s: %w", userID, err)
	}
	return nil
}
