package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scrim-lobby/internal/application"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/store"
)

// GetScrim returns a scrim by ID
func (s *ScrimService) GetScrim(ctx context.Context, scrimID string) (*domain.Scrim, error) {
	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		return nil, err
	}
	return &scrim, nil
}

// ListScrims returns open scrims (BUSCANDO or LOBBY_ARMADO) matching the
// filter, soonest first
func (s *ScrimService) ListScrims(ctx context.Context, filter domain.ScrimFilter) ([]domain.Scrim, error) {
	scrims, err := s.allScrims()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Scrim, 0, len(scrims))
	for _, sc := range scrims {
		if sc.State.Listed() && filter.Matches(sc) {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

// ListApplications returns the applications of a scrim in the order they arrived
func (s *ScrimService) ListApplications(ctx context.Context, scrimID string) ([]domain.Application, error) {
	if _, err := s.loadScrim(scrimID); err != nil {
		return nil, err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	out := application.ForScrim(apps, scrimID)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AppliedAt.Before(out[j].AppliedAt)
	})
	return out, nil
}

// FindMyScrims returns the scrims a user organizes or applied to, latest first
func (s *ScrimService) FindMyScrims(ctx context.Context, userID string) ([]domain.MyScrim, error) {
	scrims, err := s.allScrims()
	if err != nil {
		return nil, err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	applied := make(map[string]domain.ApplicationState)
	for _, a := range apps {
		if a.UserID == userID {
			applied[a.ScrimID] = a.State
		}
	}

	out := make([]domain.MyScrim, 0)
	for _, sc := range scrims {
		state, didApply := applied[sc.ID]
		if sc.OrganizerID != userID && !didApply {
			continue
		}
		out = append(out, domain.MyScrim{
			Scrim:            sc,
			Organizer:        sc.OrganizerID == userID,
			ApplicationState: state,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scrim.ScheduledAt.After(out[j].Scrim.ScheduledAt)
	})
	return out, nil
}

// FindScrimsToAutoStart returns confirmed scrims whose start time has passed
func (s *ScrimService) FindScrimsToAutoStart(ctx context.Context, now time.Time) ([]domain.Scrim, error) {
	scrims, err := s.allScrims()
	if err != nil {
		return nil, err
	}

	var due []domain.Scrim
	for _, sc := range scrims {
		if sc.State == domain.ScrimStateConfirmed && sc.ScheduledAt.Before(now) {
			due = append(due, sc)
		}
	}
	return due, nil
}

// FindScrimsForReminder returns confirmed scrims starting within window that
// have not been reminded yet
func (s *ScrimService) FindScrimsForReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Scrim, error) {
	scrims, err := s.allScrims()
	if err != nil {
		return nil, err
	}

	limit := now.Add(window)
	var due []domain.Scrim
	for _, sc := range scrims {
		if sc.State != domain.ScrimStateConfirmed || sc.ReminderSent {
			continue
		}
		if sc.ScheduledAt.After(now) && sc.ScheduledAt.Before(limit) {
			due = append(due, sc)
		}
	}
	return due, nil
}

// FindUsersParticipating returns the organizer plus every accepted applicant
func (s *ScrimService) FindUsersParticipating(ctx context.Context, scrimID, organizerID string) ([]domain.User, error) {
	return s.FindUsersByApplicationState(ctx, scrimID, organizerID, domain.ApplicationStateAccepted)
}

// FindUsersByApplicationState returns the organizer plus applicants whose
// application is in one of states. Users unknown to the directory are skipped.
func (s *ScrimService) FindUsersByApplicationState(ctx context.Context, scrimID, organizerID string, states ...domain.ApplicationState) ([]domain.User, error) {
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	ids := []string{organizerID}
	for _, a := range application.ForScrim(apps, scrimID) {
		for _, st := range states {
			if a.State == st {
				ids = append(ids, a.UserID)
				break
			}
		}
	}

	seen := make(map[string]bool, len(ids))
	users := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		u, err := s.users.FindUserByID(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				s.logger.WarnContext(ctx, "participant not found in user directory", "scrim_id", scrimID, "user_id", id)
				continue
			}
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ListStatistics returns the uploaded statistics of a scrim
func (s *ScrimService) ListStatistics(ctx context.Context, scrimID string) ([]domain.Statistic, error) {
	stats, err := store.ReadAll[domain.Statistic](s.store, domain.CollectionStatistics)
	if err != nil {
		return nil, fmt.Errorf("reading statistics: %w", err)
	}
	out := make([]domain.Statistic, 0)
	for _, st := range stats {
		if st.ScrimID == scrimID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *ScrimService) allScrims() ([]domain.Scrim, error) {
	scrims, err := store.ReadAll[domain.Scrim](s.store, domain.CollectionScrims)
	if err != nil {
		return nil, fmt.Errorf("reading scrims: %w", err)
	}
	return scrims, nil
}
