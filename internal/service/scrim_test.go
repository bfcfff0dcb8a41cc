package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type() == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last(eventType string) domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type() == eventType {
			return p.events[i]
		}
	}
	return nil
}

// flakyBackend fails writes to the named collections while armed
type flakyBackend struct {
	store.Backend
	mu   sync.Mutex
	fail map[string]bool
}

func (b *flakyBackend) failWrites(collection string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[collection] = fail
}

func (b *flakyBackend) Write(collection string, items any) error {
	b.mu.Lock()
	fail := b.fail[collection]
	b.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: injected failure on %s", domain.ErrIO, collection)
	}
	return b.Backend.Write(collection, items)
}

type fixture struct {
	svc     *ScrimService
	users   *UserDirectory
	events  *recordingPublisher
	backend *flakyBackend
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fs, err := store.NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)
	require.NoError(t, fs.Init(domain.Collections()...))

	backend := &flakyBackend{Backend: fs, fail: make(map[string]bool)}
	events := &recordingPublisher{}
	users := NewUserDirectory(backend, logger)
	svc := NewScrimService(backend, events, users, logger)

	f := &fixture{svc: svc, users: users, events: events, backend: backend, now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) createScrim(t *testing.T, capacity int, scheduledAt time.Time) *domain.Scrim {
	t.Helper()
	scrim, err := f.svc.CreateScrim(context.Background(), domain.CreateScrimRequest{
		Game:        "valorant",
		Region:      "LATAM",
		Format:      domain.Format5v5,
		ScheduledAt: scheduledAt,
		Capacity:    capacity,
	}, "org")
	require.NoError(t, err)
	return scrim
}

func (f *fixture) apply(t *testing.T, scrimID, userID string) *domain.Application {
	t.Helper()
	app, err := f.svc.ApplyToScrim(context.Background(), scrimID, domain.ApplyRequest{DesiredRole: "duelist", ReportedLatency: 40}, userID)
	require.NoError(t, err)
	return app
}

func (f *fixture) state(t *testing.T, scrimID string) domain.ScrimState {
	t.Helper()
	scrim, err := f.svc.GetScrim(context.Background(), scrimID)
	require.NoError(t, err)
	return scrim.State
}

func (f *fixture) acceptedCount(t *testing.T, scrimID string) int {
	t.Helper()
	apps, err := f.svc.ListApplications(context.Background(), scrimID)
	require.NoError(t, err)
	n := 0
	for _, a := range apps {
		if a.State == domain.ApplicationStateAccepted {
			n++
		}
	}
	return n
}

func TestScrimService_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 2, f.now.Add(24*time.Hour))
	assert.Equal(t, domain.ScrimStateSearching, scrim.State)
	assert.Equal(t, 1, f.events.count(domain.EventScrimCreated))

	a1 := f.apply(t, scrim.ID, "u1")
	a2 := f.apply(t, scrim.ID, "u2")
	assert.Equal(t, domain.ApplicationStatePending, a1.State)
	assert.Equal(t, 2, f.events.count(domain.EventApplicationSubmitted))

	_, err := f.svc.AcceptApplication(ctx, scrim.ID, a1.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, domain.ScrimStateSearching, f.state(t, scrim.ID))

	_, err = f.svc.AcceptApplication(ctx, scrim.ID, a2.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))
	assert.Equal(t, 1, f.events.count(domain.EventLobbyFormed))

	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
	assert.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))
	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u2"))
	assert.Equal(t, domain.ScrimStateConfirmed, f.state(t, scrim.ID))
	assert.Equal(t, 1, f.events.count(domain.EventScrimConfirmed))

	require.NoError(t, f.svc.StartScrim(ctx, scrim.ID, "org"))
	assert.Equal(t, domain.ScrimStateInProgress, f.state(t, scrim.ID))
	started := f.events.last(domain.EventScrimStarted).(domain.ScrimStarted)
	assert.False(t, started.StartedBySystem)

	require.NoError(t, f.svc.FinalizeScrim(ctx, scrim.ID, "org"))
	assert.Equal(t, domain.ScrimStateFinished, f.state(t, scrim.ID))
	assert.Equal(t, 1, f.events.count(domain.EventScrimFinished))

	err = f.svc.FinalizeScrim(ctx, scrim.ID, "org")
	assert.True(t, domain.IsInvalidState(err))
	assert.Equal(t, 1, f.events.count(domain.EventScrimFinished))
}

func TestScrimService_EventsCarrySnapshotFields(t *testing.T) {
	f := newFixture(t)
	scheduled := f.now.Add(3 * time.Hour)
	scrim := f.createScrim(t, 1, scheduled)
	app := f.apply(t, scrim.ID, "u1")

	evt := f.events.last(domain.EventApplicationSubmitted).(domain.ApplicationSubmitted)
	assert.Equal(t, scrim.ID, evt.ScrimID)
	assert.Equal(t, "org", evt.OrganizerID)
	assert.Equal(t, "valorant", evt.Game)
	assert.True(t, scheduled.Equal(evt.ScheduledAt))
	assert.Equal(t, app.ID, evt.ApplicationID)
	assert.Equal(t, "u1", evt.UserID)
}

func TestScrimService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateScrim(ctx, domain.CreateScrimRequest{Game: "lol", Capacity: 0, ScheduledAt: f.now}, "org")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.CreateScrim(ctx, domain.CreateScrimRequest{Game: " ", Capacity: 2, ScheduledAt: f.now}, "org")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.CreateScrim(ctx, domain.CreateScrimRequest{Game: "lol", Capacity: 2, ScheduledAt: f.now}, "")
	assert.True(t, domain.IsUnauthorized(err))
	assert.Zero(t, f.events.count(domain.EventScrimCreated))
}

func TestScrimService_ApplyGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 2, f.now.Add(time.Hour))
	f.apply(t, scrim.ID, "u1")

	_, err := f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "tank"}, "u1")
	assert.True(t, domain.IsInvalidState(err), "duplicate application")

	_, err = f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "tank"}, "org")
	assert.True(t, domain.IsInvalidState(err), "organizer cannot apply")

	_, err = f.svc.ApplyToScrim(ctx, "missing", domain.ApplyRequest{DesiredRole: "tank"}, "u2")
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{}, "u2")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "tank"}, "")
	assert.True(t, domain.IsUnauthorized(err))
}

func TestScrimService_OrganizerOnlyOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
	app := f.apply(t, scrim.ID, "u1")

	for _, actor := range []string{"u1", ""} {
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, actor)
		assert.True(t, domain.IsUnauthorized(err))
		_, err = f.svc.RejectApplication(ctx, scrim.ID, app.ID, actor)
		assert.True(t, domain.IsUnauthorized(err))
		assert.True(t, domain.IsUnauthorized(f.svc.CancelScrim(ctx, scrim.ID, actor)))
		assert.True(t, domain.IsUnauthorized(f.svc.FinalizeScrim(ctx, scrim.ID, actor)))
	}
	assert.True(t, domain.IsUnauthorized(f.svc.StartScrim(ctx, scrim.ID, "u1")))
	assert.True(t, domain.IsUnauthorized(f.svc.ConfirmParticipation(ctx, scrim.ID, "")))

	_, err := f.svc.AcceptApplication(ctx, "missing", app.ID, "org")
	assert.True(t, domain.IsNotFound(err))
	_, err = f.svc.AcceptApplication(ctx, scrim.ID, "missing", "org")
	assert.True(t, domain.IsNotFound(err))
}

func TestScrimService_RejectApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
	a1 := f.apply(t, scrim.ID, "u1")
	a2 := f.apply(t, scrim.ID, "u2")

	_, err := f.svc.AcceptApplication(ctx, scrim.ID, a1.ID, "org")
	require.NoError(t, err)
	require.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))

	rejected, err := f.svc.RejectApplication(ctx, scrim.ID, a2.ID, "org")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStateRejected, rejected.State)
	assert.Equal(t, 1, f.events.count(domain.EventApplicationRejected))

	_, err = f.svc.RejectApplication(ctx, scrim.ID, a1.ID, "org")
	assert.True(t, domain.IsInvalidState(err), "accepted applications cannot be rejected")

	_, err = f.svc.AcceptApplication(ctx, scrim.ID, a2.ID, "org")
	assert.True(t, domain.IsInvalidState(err))
}

func TestScrimService_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
	app := f.apply(t, scrim.ID, "u1")
	_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))

	assert.Equal(t, domain.ScrimStateConfirmed, f.state(t, scrim.ID))
	assert.Equal(t, 1, f.events.count(domain.EventScrimConfirmed))
}

func TestScrimService_ConfirmRequiresAcceptedApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
	a1 := f.apply(t, scrim.ID, "u1")
	f.apply(t, scrim.ID, "u2")

	assert.True(t, domain.IsInvalidState(f.svc.ConfirmParticipation(ctx, scrim.ID, "u1")), "scrim still searching")

	_, err := f.svc.AcceptApplication(ctx, scrim.ID, a1.ID, "org")
	require.NoError(t, err)

	assert.True(t, domain.IsInvalidState(f.svc.ConfirmParticipation(ctx, scrim.ID, "u2")))
	assert.True(t, domain.IsNotFound(f.svc.ConfirmParticipation(ctx, scrim.ID, "stranger")))
}

func TestScrimService_SystemStart(t *testing.T) {
	ctx := context.Background()

	confirmedScrim := func(f *fixture, scheduledAt time.Time) string {
		scrim := f.createScrim(t, 1, scheduledAt)
		app := f.apply(t, scrim.ID, "u1")
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
		return scrim.ID
	}

	t.Run("starts due confirmed scrim", func(t *testing.T) {
		f := newFixture(t)
		id := confirmedScrim(f, f.now.Add(-time.Minute))

		require.NoError(t, f.svc.StartScrim(ctx, id, ""))
		assert.Equal(t, domain.ScrimStateInProgress, f.state(t, id))
		started := f.events.last(domain.EventScrimStarted).(domain.ScrimStarted)
		assert.True(t, started.StartedBySystem)
	})

	t.Run("future scrim is skipped", func(t *testing.T) {
		f := newFixture(t)
		id := confirmedScrim(f, f.now.Add(time.Hour))

		require.NoError(t, f.svc.StartScrim(ctx, id, ""))
		assert.Equal(t, domain.ScrimStateConfirmed, f.state(t, id))
		assert.Zero(t, f.events.count(domain.EventScrimStarted))
	})

	t.Run("unconfirmed scrim is skipped", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(-time.Hour))

		require.NoError(t, f.svc.StartScrim(ctx, scrim.ID, ""))
		assert.Equal(t, domain.ScrimStateSearching, f.state(t, scrim.ID))
	})

	t.Run("missing scrim is skipped", func(t *testing.T) {
		f := newFixture(t)
		assert.NoError(t, f.svc.StartScrim(ctx, "missing", ""))
	})

	t.Run("organizer start requires confirmed", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(-time.Hour))
		assert.True(t, domain.IsInvalidState(f.svc.StartScrim(ctx, scrim.ID, "org")))
		assert.True(t, domain.IsNotFound(f.svc.StartScrim(ctx, "missing", "org")))
	})
}

func TestScrimService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("searching scrim without applicants", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 2, f.now.Add(time.Hour))

		require.NoError(t, f.svc.CancelScrim(ctx, scrim.ID, "org"))
		assert.Equal(t, domain.ScrimStateCancelled, f.state(t, scrim.ID))
		assert.Equal(t, 1, f.events.count(domain.EventScrimCancelled))

		assert.True(t, domain.IsInvalidState(f.svc.CancelScrim(ctx, scrim.ID, "org")))
	})

	t.Run("running scrim cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
		app := f.apply(t, scrim.ID, "u1")
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
		require.NoError(t, f.svc.StartScrim(ctx, scrim.ID, "org"))

		err = f.svc.CancelScrim(ctx, scrim.ID, "org")
		assert.True(t, domain.IsInvalidState(err))
		assert.Equal(t, domain.ScrimStateInProgress, f.state(t, scrim.ID))
	})

	t.Run("confirmed scrim can finalize early", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
		app := f.apply(t, scrim.ID, "u1")
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))

		require.NoError(t, f.svc.FinalizeScrim(ctx, scrim.ID, "org"))
		assert.Equal(t, domain.ScrimStateFinished, f.state(t, scrim.ID))
	})
}

func TestScrimService_ConcurrentAcceptsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))

	const n = 16
	apps := make([]*domain.Application, n)
	for i := 0; i < n; i++ {
		apps[i] = f.apply(t, scrim.ID, fmt.Sprintf("u%d", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.AcceptApplication(ctx, scrim.ID, id, "org")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.True(t, domain.IsInvalidState(err), "unexpected error: %v", err)
		}(apps[i].ID)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "flex"}, fmt.Sprintf("late%d", i))
			if err != nil {
				assert.True(t, domain.IsInvalidState(err), "unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, f.acceptedCount(t, scrim.ID))
	assert.Equal(t, 1, f.events.count(domain.EventLobbyFormed))
	assert.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))
}

func TestScrimService_ConcurrentDuplicateApplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 3, f.now.Add(time.Hour))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "support"}, "same-user")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domain.IsInvalidState(err))
	}
	assert.Equal(t, 1, succeeded)

	apps, err := f.svc.ListApplications(ctx, scrim.ID)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestScrimService_ConcurrentOperationsOnDifferentScrims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.createScrim(t, 1, f.now.Add(time.Hour)).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, f.svc.CancelScrim(ctx, id, "org"))
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, domain.ScrimStateCancelled, f.state(t, id), "no update may be lost")
	}
}

func TestScrimService_FailedWriteLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()

	t.Run("lobby transition failure reverts acceptance", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
		app := f.apply(t, scrim.ID, "u1")

		f.backend.failWrites(domain.CollectionScrims, true)
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.Error(t, err)
		assert.True(t, domain.IsIOFailure(err))
		assert.Equal(t, domain.ScrimStateSearching, f.state(t, scrim.ID))
		assert.Zero(t, f.acceptedCount(t, scrim.ID))
		assert.Zero(t, f.events.count(domain.EventApplicationAccepted))
		assert.Zero(t, f.events.count(domain.EventLobbyFormed))

		f.backend.failWrites(domain.CollectionScrims, false)
		_, err = f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		assert.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))
	})

	t.Run("application write failure", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))

		f.backend.failWrites(domain.CollectionApplications, true)
		_, err := f.svc.ApplyToScrim(ctx, scrim.ID, domain.ApplyRequest{DesiredRole: "igl"}, "u1")
		assert.True(t, domain.IsIOFailure(err))
		assert.Zero(t, f.events.count(domain.EventApplicationSubmitted))

		f.backend.failWrites(domain.CollectionApplications, false)
		f.apply(t, scrim.ID, "u1")
	})

	t.Run("cancel failure", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))

		f.backend.failWrites(domain.CollectionScrims, true)
		err := f.svc.CancelScrim(ctx, scrim.ID, "org")
		assert.True(t, domain.IsIOFailure(err))
		f.backend.failWrites(domain.CollectionScrims, false)

		assert.Equal(t, domain.ScrimStateSearching, f.state(t, scrim.ID))
		assert.Zero(t, f.events.count(domain.EventScrimCancelled))
	})

	t.Run("confirmed transition failure reverts confirmation", func(t *testing.T) {
		f := newFixture(t)
		scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
		app := f.apply(t, scrim.ID, "u1")
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		require.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))

		f.backend.failWrites(domain.CollectionScrims, true)
		err = f.svc.ConfirmParticipation(ctx, scrim.ID, "u1")
		require.Error(t, err)
		assert.True(t, domain.IsIOFailure(err))
		f.backend.failWrites(domain.CollectionScrims, false)

		assert.Equal(t, domain.ScrimStateLobbyFormed, f.state(t, scrim.ID))
		apps, err := f.svc.ListApplications(ctx, scrim.ID)
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.False(t, apps[0].HasConfirmed)
		assert.Zero(t, f.events.count(domain.EventScrimConfirmed))

		require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
		assert.Equal(t, domain.ScrimStateConfirmed, f.state(t, scrim.ID))
		assert.Equal(t, 1, f.events.count(domain.EventScrimConfirmed))
	})
}

func TestScrimService_UploadStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrim := f.createScrim(t, 1, f.now.Add(time.Hour))
	app := f.apply(t, scrim.ID, "u1")
	_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))

	kills, deaths, assists := 20, 5, 7
	entries := []domain.StatisticRequest{
		{UserID: "u1", MVP: true, Kills: &kills, Deaths: &deaths, Assists: &assists},
		{UserID: "u2", Kills: &kills},
	}

	_, err = f.svc.UploadStatistics(ctx, scrim.ID, entries, "org")
	assert.True(t, domain.IsInvalidState(err), "scrim not finished")

	require.NoError(t, f.svc.FinalizeScrim(ctx, scrim.ID, "org"))

	_, err = f.svc.UploadStatistics(ctx, scrim.ID, entries, "u1")
	assert.True(t, domain.IsUnauthorized(err))

	saved, err := f.svc.UploadStatistics(ctx, scrim.ID, entries, "org")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "u1", saved[0].UserID)
	assert.True(t, saved[0].MVP)
	assert.Equal(t, 20, saved[0].Kills)

	_, err = f.svc.UploadStatistics(ctx, scrim.ID, entries, "org")
	assert.True(t, domain.IsInvalidState(err), "statistics upload once")

	listed, err := f.svc.ListStatistics(ctx, scrim.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestScrimService_ReminderQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	confirm := func(scheduledAt time.Time) string {
		scrim := f.createScrim(t, 1, scheduledAt)
		app := f.apply(t, scrim.ID, "u1")
		_, err := f.svc.AcceptApplication(ctx, scrim.ID, app.ID, "org")
		require.NoError(t, err)
		require.NoError(t, f.svc.ConfirmParticipation(ctx, scrim.ID, "u1"))
		return scrim.ID
	}

	soon := confirm(f.now.Add(90 * time.Minute))
	later := confirm(f.now.Add(5 * time.Hour))
	past := confirm(f.now.Add(-10 * time.Minute))
	f.createScrim(t, 1, f.now.Add(30*time.Minute))

	due, err := f.svc.FindScrimsForReminder(ctx, f.now, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon, due[0].ID)

	require.NoError(t, f.svc.MarkReminderSent(ctx, soon))
	require.NoError(t, f.svc.MarkReminderSent(ctx, soon))
	due, err = f.svc.FindScrimsForReminder(ctx, f.now, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, due)

	start, err := f.svc.FindScrimsToAutoStart(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, start, 1)
	assert.Equal(t, past, start[0].ID)
	assert.NotEqual(t, later, start[0].ID)
}

func TestScrimService_ListAndFindMyScrims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createScrim(t, 2, f.now.Add(2*time.Hour))
	b, err := f.svc.CreateScrim(ctx, domain.CreateScrimRequest{
		Game: "CS2", Region: "EU", MaxLatency: 80, ScheduledAt: f.now.Add(time.Hour), Capacity: 2,
	}, "other-org")
	require.NoError(t, err)
	c := f.createScrim(t, 2, f.now.Add(3*time.Hour))
	require.NoError(t, f.svc.CancelScrim(ctx, c.ID, "org"))

	all, err := f.svc.ListScrims(ctx, domain.ScrimFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2, "cancelled scrims are not listed")
	assert.Equal(t, b.ID, all[0].ID, "soonest first")

	byGame, err := f.svc.ListScrims(ctx, domain.ScrimFilter{Game: "cs2", MaxLatency: 100})
	require.NoError(t, err)
	require.Len(t, byGame, 1)
	assert.Equal(t, b.ID, byGame[0].ID)

	byDate, err := f.svc.ListScrims(ctx, domain.ScrimFilter{Date: f.now})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	f.apply(t, b.ID, "org")
	mine, err := f.svc.FindMyScrims(ctx, "org")
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, c.ID, mine[0].Scrim.ID, "latest first")
	assert.Equal(t, a.ID, mine[1].Scrim.ID)
	assert.Equal(t, b.ID, mine[2].Scrim.ID)
	assert.True(t, mine[0].Organizer)
	assert.False(t, mine[2].Organizer)
	assert.Equal(t, domain.ApplicationStatePending, mine[2].ApplicationState)
}

func TestScrimService_FindUsersParticipating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.WriteAll(f.backend, domain.CollectionUsers, []domain.User{
		{ID: "org", Username: "organizer", Email: "org@example.com"},
		{ID: "u1", Username: "one", Email: "one@example.com"},
		{ID: "u2", Username: "two", Email: "two@example.com"},
	}))

	scrim := f.createScrim(t, 3, f.now.Add(time.Hour))
	a1 := f.apply(t, scrim.ID, "u1")
	f.apply(t, scrim.ID, "u2")
	ghost := f.apply(t, scrim.ID, "ghost")
	_, err := f.svc.AcceptApplication(ctx, scrim.ID, a1.ID, "org")
	require.NoError(t, err)
	_, err = f.svc.AcceptApplication(ctx, scrim.ID, ghost.ID, "org")
	require.NoError(t, err)

	users, err := f.svc.FindUsersParticipating(ctx, scrim.ID, "org")
	require.NoError(t, err)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"org", "u1"}, ids, "unknown users are skipped")

	users, err = f.svc.FindUsersByApplicationState(ctx, scrim.ID, "org", domain.ApplicationStatePending, domain.ApplicationStateAccepted)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestScrimService_UnknownScrim(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetScrim(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.svc.ListApplications(context.Background(), "nope")
	assert.True(t, domain.IsNotFound(err))
}
