package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrim-lobby/internal/application"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/store"
)

// Publisher delivers domain events to subscribers
type Publisher interface {
	Publish(evt domain.Event)
}

// UserFinder looks up users owned by the account service
type UserFinder interface {
	FindUserByID(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// ScrimService drives the scrim lifecycle. Every mutating operation holds the
// scrim's lock across read, guard, write and publish.
type ScrimService struct {
	store  store.Backend
	events Publisher
	users  UserFinder
	locks  *KeyedMutex
	logger *slog.Logger

	// serialize read-modify-write of whole collections across scrims
	scrimsMu sync.Mutex
	appsMu   sync.Mutex
	statsMu  sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewScrimService creates a new scrim service
func NewScrimService(backend store.Backend, events Publisher, users UserFinder, logger *slog.Logger) *ScrimService {
	return &ScrimService{
		store:  backend,
		events: events,
		users:  users,
		locks:  NewKeyedMutex(),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClock replaces the time source
func (s *ScrimService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateScrim opens a new scrim in BUSCANDO
func (s *ScrimService) CreateScrim(ctx context.Context, req domain.CreateScrimRequest, organizerID string) (*domain.Scrim, error) {
	if organizerID == "" {
		return nil, fmt.Errorf("%w: creating a scrim requires an organizer", domain.ErrUnauthorized)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validating scrim: %w", err)
	}

	scrim := req.ToScrim(s.newID(), organizerID, s.now())
	if err := s.saveScrim(scrim); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "scrim created",
		"scrim_id", scrim.ID,
		"organizer_id", organizerID,
		"game", scrim.Game,
		"capacity", scrim.Capacity,
	)

	s.events.Publish(domain.ScrimCreated{
		EventHeader: domain.NewEventHeader(scrim, s.now()),
		Region:      scrim.Region,
		RankMin:     scrim.RankMin,
		RankMax:     scrim.RankMax,
	})
	return &scrim, nil
}

// ApplyToScrim submits a PENDIENTE application for the user
func (s *ScrimService) ApplyToScrim(ctx context.Context, scrimID string, req domain.ApplyRequest, userID string) (*domain.Application, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: applying requires a user", domain.ErrUnauthorized)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validating application: %w", err)
	}

	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		return nil, err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	apps, err = application.Submit(scrim, apps, domain.Application{
		ID:              s.newID(),
		UserID:          userID,
		DesiredRole:     req.DesiredRole,
		ReportedLatency: req.ReportedLatency,
		AppliedAt:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	app := apps[len(apps)-1]

	if err := s.saveApplication(app); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "application submitted",
		"scrim_id", scrimID,
		"application_id", app.ID,
		"user_id", userID,
	)
	s.events.Publish(domain.ApplicationSubmitted{
		EventHeader:   domain.NewEventHeader(scrim, s.now()),
		ApplicationID: app.ID,
		UserID:        userID,
	})

	// Applying never raises the accepted count, but both entry paths run the
	// same threshold check
	formed, err := s.formLobbyIfFull(&scrim, apps)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to form lobby after application", "scrim_id", scrimID, "error", err)
	} else if formed {
		s.publishLobbyFormed(ctx, scrim)
	}

	return &app, nil
}

// AcceptApplication accepts a PENDIENTE application. Reaching capacity moves
// the scrim to LOBBY_ARMADO.
func (s *ScrimService) AcceptApplication(ctx context.Context, scrimID, applicationID, actorID string) (*domain.Application, error) {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadOwnedScrim(scrimID, actorID)
	if err != nil {
		return nil, err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	change, err := application.Accept(scrim, apps, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.saveApplication(apps[change.Index]); err != nil {
		change.Revert(apps)
		return nil, err
	}

	formed, err := s.formLobbyIfFull(&scrim, apps)
	if err != nil {
		// Undo the acceptance so the persisted count and state agree
		change.Revert(apps)
		if cerr := s.saveApplication(apps[change.Index]); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to revert acceptance",
				"scrim_id", scrimID,
				"application_id", applicationID,
				"error", cerr,
			)
		}
		return nil, err
	}

	app := apps[change.Index]
	s.logger.InfoContext(ctx, "application accepted",
		"scrim_id", scrimID,
		"application_id", app.ID,
		"user_id", app.UserID,
	)
	s.events.Publish(domain.ApplicationAccepted{
		EventHeader:   domain.NewEventHeader(scrim, s.now()),
		ApplicationID: app.ID,
		UserID:        app.UserID,
	})
	if formed {
		s.publishLobbyFormed(ctx, scrim)
	}

	return &app, nil
}

// RejectApplication rejects a PENDIENTE application
func (s *ScrimService) RejectApplication(ctx context.Context, scrimID, applicationID, actorID string) (*domain.Application, error) {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadOwnedScrim(scrimID, actorID)
	if err != nil {
		return nil, err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return nil, err
	}

	change, err := application.Reject(scrim, apps, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.saveApplication(apps[change.Index]); err != nil {
		change.Revert(apps)
		return nil, err
	}

	app := apps[change.Index]
	s.logger.InfoContext(ctx, "application rejected",
		"scrim_id", scrimID,
		"application_id", app.ID,
		"user_id", app.UserID,
	)
	s.events.Publish(domain.ApplicationRejected{
		EventHeader:   domain.NewEventHeader(scrim, s.now()),
		ApplicationID: app.ID,
		UserID:        app.UserID,
	})
	return &app, nil
}

// ConfirmParticipation confirms the user's accepted application. Once every
// slot is confirmed the scrim moves to CONFIRMADO.
func (s *ScrimService) ConfirmParticipation(ctx context.Context, scrimID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: confirming requires a user", domain.ErrUnauthorized)
	}

	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		return err
	}
	apps, err := s.loadApplications()
	if err != nil {
		return err
	}

	change, changed, err := application.Confirm(scrim, apps, userID)
	if err != nil {
		return err
	}
	if !changed {
		s.logger.DebugContext(ctx, "participation already confirmed", "scrim_id", scrimID, "user_id", userID)
		return nil
	}
	if err := s.saveApplication(apps[change.Index]); err != nil {
		change.Revert(apps)
		return err
	}
	s.logger.InfoContext(ctx, "participation confirmed", "scrim_id", scrimID, "user_id", userID)

	if scrim.State != domain.ScrimStateLobbyFormed || application.CountConfirmed(apps, scrimID) < scrim.Capacity {
		return nil
	}

	if err := s.transition(&scrim, domain.ScrimStateConfirmed); err != nil {
		change.Revert(apps)
		if cerr := s.saveApplication(apps[change.Index]); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to revert confirmation", "scrim_id", scrimID, "user_id", userID, "error", cerr)
		}
		return err
	}

	s.logger.InfoContext(ctx, "scrim confirmed", "scrim_id", scrimID)
	s.events.Publish(domain.ScrimConfirmed{EventHeader: domain.NewEventHeader(scrim, s.now())})
	return nil
}

// StartScrim moves a CONFIRMADO scrim to EN_JUEGO. An empty actorID means the
// scheduler is starting it: then the scrim must be due, and anything that
// does not qualify is skipped without error.
func (s *ScrimService) StartScrim(ctx context.Context, scrimID, actorID string) error {
	system := actorID == ""

	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		if system && domain.IsNotFound(err) {
			s.logger.DebugContext(ctx, "auto-start skipped, scrim not found", "scrim_id", scrimID)
			return nil
		}
		return err
	}

	if system {
		if scrim.State != domain.ScrimStateConfirmed || !scrim.ScheduledAt.Before(s.now()) {
			s.logger.DebugContext(ctx, "auto-start skipped",
				"scrim_id", scrimID,
				"state", scrim.State,
				"scheduled_at", scrim.ScheduledAt,
			)
			return nil
		}
	} else {
		if scrim.OrganizerID != actorID {
			return fmt.Errorf("%w: only the organizer can start scrim %s", domain.ErrUnauthorized, scrimID)
		}
		if scrim.State != domain.ScrimStateConfirmed {
			return fmt.Errorf("%w: cannot start scrim in state %s", domain.ErrInvalidState, scrim.State)
		}
	}

	if err := s.transition(&scrim, domain.ScrimStateInProgress); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "scrim started", "scrim_id", scrimID, "started_by_system", system)
	s.events.Publish(domain.ScrimStarted{
		EventHeader:     domain.NewEventHeader(scrim, s.now()),
		StartedBySystem: system,
	})
	return nil
}

// CancelScrim cancels a scrim that has not started
func (s *ScrimService) CancelScrim(ctx context.Context, scrimID, actorID string) error {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadOwnedScrim(scrimID, actorID)
	if err != nil {
		return err
	}
	if !scrim.State.Cancellable() {
		return fmt.Errorf("%w: cannot cancel scrim in state %s", domain.ErrInvalidState, scrim.State)
	}

	if err := s.transition(&scrim, domain.ScrimStateCancelled); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "scrim cancelled", "scrim_id", scrimID)
	s.events.Publish(domain.ScrimCancelled{EventHeader: domain.NewEventHeader(scrim, s.now())})
	return nil
}

// FinalizeScrim ends a confirmed or running scrim
func (s *ScrimService) FinalizeScrim(ctx context.Context, scrimID, actorID string) error {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadOwnedScrim(scrimID, actorID)
	if err != nil {
		return err
	}
	if scrim.State != domain.ScrimStateConfirmed && scrim.State != domain.ScrimStateInProgress {
		return fmt.Errorf("%w: cannot finalize scrim in state %s", domain.ErrInvalidState, scrim.State)
	}

	if err := s.transition(&scrim, domain.ScrimStateFinished); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "scrim finalized", "scrim_id", scrimID)
	s.events.Publish(domain.ScrimFinished{EventHeader: domain.NewEventHeader(scrim, s.now())})
	return nil
}

// UploadStatistics records the results of a finished scrim. Results can be
// uploaded once; entries missing kills, deaths or assists are skipped.
func (s *ScrimService) UploadStatistics(ctx context.Context, scrimID string, entries []domain.StatisticRequest, actorID string) ([]domain.Statistic, error) {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadOwnedScrim(scrimID, actorID)
	if err != nil {
		return nil, err
	}
	if scrim.State != domain.ScrimStateFinished {
		return nil, fmt.Errorf("%w: statistics require a finished scrim, got %s", domain.ErrInvalidState, scrim.State)
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	stats, err := store.ReadAll[domain.Statistic](s.store, domain.CollectionStatistics)
	if err != nil {
		return nil, fmt.Errorf("reading statistics: %w", err)
	}
	for _, st := range stats {
		if st.ScrimID == scrimID {
			return nil, fmt.Errorf("%w: statistics already uploaded for scrim %s", domain.ErrInvalidState, scrimID)
		}
	}

	added := make([]domain.Statistic, 0, len(entries))
	for _, e := range entries {
		if !e.Complete() {
			s.logger.WarnContext(ctx, "skipping incomplete statistic", "scrim_id", scrimID, "user_id", e.UserID)
			continue
		}
		added = append(added, domain.Statistic{
			ID:      s.newID(),
			ScrimID: scrimID,
			UserID:  e.UserID,
			MVP:     e.MVP,
			Kills:   *e.Kills,
			Deaths:  *e.Deaths,
			Assists: *e.Assists,
			Notes:   e.Notes,
		})
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("%w: no complete statistics in upload", domain.ErrInvalidRequest)
	}

	if err := store.WriteAll(s.store, domain.CollectionStatistics, append(stats, added...)); err != nil {
		return nil, fmt.Errorf("saving statistics: %w", err)
	}

	s.logger.InfoContext(ctx, "statistics uploaded", "scrim_id", scrimID, "entries", len(added))
	return added, nil
}

// MarkReminderSent flags that the pre-match reminder went out
func (s *ScrimService) MarkReminderSent(ctx context.Context, scrimID string) error {
	unlock := s.locks.Lock(scrimID)
	defer unlock()

	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		return err
	}
	if scrim.ReminderSent {
		return nil
	}

	scrim.ReminderSent = true
	if err := s.saveScrim(scrim); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "reminder marked as sent", "scrim_id", scrimID)
	return nil
}

// formLobbyIfFull moves a BUSCANDO scrim to LOBBY_ARMADO once the accepted
// count reaches capacity. It reports whether the transition happened.
func (s *ScrimService) formLobbyIfFull(scrim *domain.Scrim, apps []domain.Application) (bool, error) {
	if scrim.State != domain.ScrimStateSearching {
		return false, nil
	}
	if application.CountAccepted(apps, scrim.ID) < scrim.Capacity {
		return false, nil
	}
	if err := s.transition(scrim, domain.ScrimStateLobbyFormed); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ScrimService) publishLobbyFormed(ctx context.Context, scrim domain.Scrim) {
	s.logger.InfoContext(ctx, "lobby formed", "scrim_id", scrim.ID, "capacity", scrim.Capacity)
	s.events.Publish(domain.LobbyFormed{EventHeader: domain.NewEventHeader(scrim, s.now())})
}

// transition persists a new state, restoring the previous one on failure
func (s *ScrimService) transition(scrim *domain.Scrim, to domain.ScrimState) error {
	prev := scrim.State
	scrim.State = to
	if err := s.saveScrim(*scrim); err != nil {
		scrim.State = prev
		return err
	}
	return nil
}

func (s *ScrimService) loadScrim(scrimID string) (domain.Scrim, error) {
	scrims, err := store.ReadAll[domain.Scrim](s.store, domain.CollectionScrims)
	if err != nil {
		return domain.Scrim{}, fmt.Errorf("reading scrims: %w", err)
	}
	for _, sc := range scrims {
		if sc.ID == scrimID {
			return sc, nil
		}
	}
	return domain.Scrim{}, fmt.Errorf("%w: scrim %s", domain.ErrNotFound, scrimID)
}

// loadOwnedScrim loads a scrim and checks the actor organizes it
func (s *ScrimService) loadOwnedScrim(scrimID, actorID string) (domain.Scrim, error) {
	if actorID == "" {
		return domain.Scrim{}, fmt.Errorf("%w: operation requires an actor", domain.ErrUnauthorized)
	}
	scrim, err := s.loadScrim(scrimID)
	if err != nil {
		return domain.Scrim{}, err
	}
	if scrim.OrganizerID != actorID {
		return domain.Scrim{}, fmt.Errorf("%w: user %s does not organize scrim %s", domain.ErrUnauthorized, actorID, scrimID)
	}
	return scrim, nil
}

func (s *ScrimService) loadApplications() ([]domain.Application, error) {
	apps, err := store.ReadAll[domain.Application](s.store, domain.CollectionApplications)
	if err != nil {
		return nil, fmt.Errorf("reading applications: %w", err)
	}
	return apps, nil
}

// saveScrim upserts one scrim. The caller holds that scrim's key lock, so
// only records of other scrims can change between this read and write.
func (s *ScrimService) saveScrim(scrim domain.Scrim) error {
	s.scrimsMu.Lock()
	defer s.scrimsMu.Unlock()

	scrims, err := store.ReadAll[domain.Scrim](s.store, domain.CollectionScrims)
	if err != nil {
		return fmt.Errorf("reading scrims: %w", err)
	}
	scrims = upsert(scrims, scrim, func(sc domain.Scrim) string { return sc.ID })
	if err := store.WriteAll(s.store, domain.CollectionScrims, scrims); err != nil {
		return fmt.Errorf("saving scrim %s: %w", scrim.ID, err)
	}
	return nil
}

func (s *ScrimService) saveApplication(app domain.Application) error {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()

	apps, err := store.ReadAll[domain.Application](s.store, domain.CollectionApplications)
	if err != nil {
		return fmt.Errorf("reading applications: %w", err)
	}
	apps = upsert(apps, app, func(a domain.Application) string { return a.ID })
	if err := store.WriteAll(s.store, domain.CollectionApplications, apps); err != nil {
		return fmt.Errorf("saving application %s: %w", app.ID, err)
	}
	return nil
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}
