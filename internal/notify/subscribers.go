package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
)

// Participants resolves the users involved in a scrim
type Participants interface {
	FindUsersByApplicationState(ctx context.Context, scrimID, organizerID string, states ...domain.ApplicationState) ([]domain.User, error)
}

// Directory looks up users
type Directory interface {
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Subscribers turns domain events into notifications
type Subscribers struct {
	participants Participants
	users        Directory
	notifier     Notifier
	concurrency  int
	logger       *slog.Logger
	now          func() time.Time
}

// NewSubscribers creates the notification subscribers
func NewSubscribers(participants Participants, users Directory, notifier Notifier, concurrency int, logger *slog.Logger) *Subscribers {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Subscribers{
		participants: participants,
		users:        users,
		notifier:     notifier,
		concurrency:  concurrency,
		logger:       logger,
		now:          time.Now,
	}
}

// Register subscribes every notification handler to the bus
func (s *Subscribers) Register(bus *eventbus.Bus) {
	eventbus.On(bus, "notify.scrim_created", s.onScrimCreated)
	eventbus.On(bus, "notify.application_submitted", s.onApplicationSubmitted)
	eventbus.On(bus, "notify.application_accepted", s.onApplicationAccepted)
	eventbus.On(bus, "notify.application_rejected", s.onApplicationRejected)
	eventbus.On(bus, "notify.lobby_formed", s.onLobbyFormed)
	eventbus.On(bus, "notify.scrim_confirmed", func(ctx context.Context, evt domain.ScrimConfirmed) error {
		return s.notifyParticipants(ctx, KindScrimConfirmed, evt.EventHeader, "Scrim confirmed")
	})
	eventbus.On(bus, "notify.scrim_started", func(ctx context.Context, evt domain.ScrimStarted) error {
		return s.notifyParticipants(ctx, KindScrimStarted, evt.EventHeader, "Your scrim has started")
	})
	eventbus.On(bus, "notify.scrim_cancelled", func(ctx context.Context, evt domain.ScrimCancelled) error {
		return s.notifyParticipants(ctx, KindScrimCancelled, evt.EventHeader, "Scrim cancelled")
	})
	eventbus.On(bus, "notify.scrim_finished", func(ctx context.Context, evt domain.ScrimFinished) error {
		return s.notifyParticipants(ctx, KindScrimFinished, evt.EventHeader, "Your scrim has finished")
	})
}

// SendReminder notifies the participants of an upcoming scrim. It fails if
// any delivery failed so the caller can retry on the next run.
func (s *Subscribers) SendReminder(ctx context.Context, scrim domain.Scrim) error {
	users, err := s.participants.FindUsersByApplicationState(ctx, scrim.ID, scrim.OrganizerID, domain.ApplicationStateAccepted)
	if err != nil {
		return fmt.Errorf("finding participants: %w", err)
	}
	header := domain.NewEventHeader(scrim, s.now())
	return s.fanOut(ctx, KindReminder, header, "Reminder: your scrim starts soon", users, (*domain.User).WantsReminders)
}

// onScrimCreated alerts users whose default search matches the new scrim
func (s *Subscribers) onScrimCreated(ctx context.Context, evt domain.ScrimCreated) error {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	snapshot := domain.Scrim{Game: evt.Game, Region: evt.Region, RankMin: evt.RankMin, RankMax: evt.RankMax}
	matched := make([]domain.User, 0)
	for _, u := range users {
		if u.ID == evt.OrganizerID {
			continue
		}
		if u.MatchesSearch(snapshot) {
			matched = append(matched, u)
		}
	}

	s.logger.DebugContext(ctx, "matched users for new scrim", "scrim_id", evt.ScrimID, "matched", len(matched))
	return s.fanOut(ctx, KindScrimCreated, evt.EventHeader, "New scrim available", matched, (*domain.User).WantsScrimAlerts)
}

func (s *Subscribers) onApplicationSubmitted(ctx context.Context, evt domain.ApplicationSubmitted) error {
	return s.notifyUser(ctx, evt.OrganizerID, KindApplicationSubmitted, evt.EventHeader, "New application for your scrim")
}

func (s *Subscribers) onApplicationAccepted(ctx context.Context, evt domain.ApplicationAccepted) error {
	return s.notifyUser(ctx, evt.UserID, KindApplicationAccepted, evt.EventHeader, "Your application was accepted")
}

func (s *Subscribers) onApplicationRejected(ctx context.Context, evt domain.ApplicationRejected) error {
	return s.notifyUser(ctx, evt.UserID, KindApplicationRejected, evt.EventHeader, "Your application was rejected")
}

// onLobbyFormed also reaches pending applicants so they know the lobby closed
func (s *Subscribers) onLobbyFormed(ctx context.Context, evt domain.LobbyFormed) error {
	users, err := s.participants.FindUsersByApplicationState(ctx, evt.ScrimID, evt.OrganizerID,
		domain.ApplicationStatePending, domain.ApplicationStateAccepted)
	if err != nil {
		return fmt.Errorf("finding applicants: %w", err)
	}
	return s.fanOut(ctx, KindLobbyFormed, evt.EventHeader, "Lobby formed", users, (*domain.User).WantsScrimAlerts)
}

func (s *Subscribers) notifyParticipants(ctx context.Context, kind Kind, header domain.EventHeader, subject string) error {
	users, err := s.participants.FindUsersByApplicationState(ctx, header.ScrimID, header.OrganizerID, domain.ApplicationStateAccepted)
	if err != nil {
		return fmt.Errorf("finding participants: %w", err)
	}
	return s.fanOut(ctx, kind, header, subject, users, (*domain.User).WantsScrimAlerts)
}

func (s *Subscribers) notifyUser(ctx context.Context, userID string, kind Kind, header domain.EventHeader, subject string) error {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.logger.WarnContext(ctx, "notification recipient not found", "user_id", userID, "scrim_id", header.ScrimID)
			return nil
		}
		return err
	}
	wantsApplicationAlerts := func(u *domain.User) bool {
		return u.Preferences != nil && u.Preferences.ApplicationAlerts && u.Preferences.HasChannel(domain.ChannelEmail)
	}
	return s.fanOut(ctx, kind, header, subject, []domain.User{*user}, wantsApplicationAlerts)
}

// fanOut sends to every user passing the gate with bounded concurrency and
// joins the delivery errors
func (s *Subscribers) fanOut(ctx context.Context, kind Kind, header domain.EventHeader, subject string, users []domain.User, gate func(*domain.User) bool) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		sent int
	)
	g.SetLimit(s.concurrency)

	for i := range users {
		u := users[i]
		if !gate(&u) {
			s.logger.DebugContext(ctx, "user opted out of notification", "user_id", u.ID, "kind", kind)
			continue
		}
		msg := Notification{
			Kind:        kind,
			RecipientID: u.ID,
			Email:       u.Email,
			Username:    u.Username,
			Subject:     fmt.Sprintf("%s: %s", subject, header.Game),
			ScrimID:     header.ScrimID,
			Game:        header.Game,
			ScheduledAt: header.ScheduledAt,
			CreatedAt:   s.now().UTC(),
		}
		g.Go(func() error {
			err := s.notifier.Send(ctx, msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("notifying %s: %w", msg.RecipientID, err))
				return nil
			}
			sent++
			return nil
		})
	}
	// Delivery errors are collected in errs; no closure fails the group.
	g.Wait()

	s.logger.InfoContext(ctx, "notifications sent",
		"kind", kind,
		"scrim_id", header.ScrimID,
		"sent", sent,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}
