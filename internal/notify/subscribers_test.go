package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail map[string]bool
}

func (n *fakeNotifier) Send(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[msg.RecipientID] {
		return errors.New("smtp rejected")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.RecipientID)
	}
	sort.Strings(out)
	return out
}

// fakeDirectory serves users and applications from memory
type fakeDirectory struct {
	users []domain.User
	apps  []domain.Application
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	for i := range d.users {
		if d.users[i].ID == userID {
			return &d.users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
}

func (d *fakeDirectory) ListUsers(ctx context.Context) ([]domain.User, error) {
	return d.users, nil
}

func (d *fakeDirectory) FindUsersByApplicationState(ctx context.Context, scrimID, organizerID string, states ...domain.ApplicationState) ([]domain.User, error) {
	ids := []string{organizerID}
	for _, a := range d.apps {
		if a.ScrimID != scrimID {
			continue
		}
		for _, st := range states {
			if a.State == st {
				ids = append(ids, a.UserID)
			}
		}
	}
	var users []domain.User
	for _, id := range ids {
		if u, err := d.FindUserByID(ctx, id); err == nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

func user(id string, prefs *domain.Preferences) domain.User {
	return domain.User{ID: id, Username: id, Email: id + "@example.com", Preferences: prefs}
}

func newDirectory() *fakeDirectory {
	noEmail := domain.DefaultPreferences()
	noEmail.Channels = []string{domain.ChannelDiscord}

	noAlerts := domain.DefaultPreferences()
	noAlerts.ScrimAlerts = false

	return &fakeDirectory{
		users: []domain.User{
			user("org", domain.DefaultPreferences()),
			user("accepted", domain.DefaultPreferences()),
			user("pending", domain.DefaultPreferences()),
			user("rejected", domain.DefaultPreferences()),
			user("discord-only", noEmail),
			user("muted", noAlerts),
			user("no-prefs", nil),
		},
		apps: []domain.Application{
			{ScrimID: "s1", UserID: "accepted", State: domain.ApplicationStateAccepted},
			{ScrimID: "s1", UserID: "pending", State: domain.ApplicationStatePending},
			{ScrimID: "s1", UserID: "rejected", State: domain.ApplicationStateRejected},
			{ScrimID: "s1", UserID: "discord-only", State: domain.ApplicationStateAccepted},
			{ScrimID: "s1", UserID: "muted", State: domain.ApplicationStateAccepted},
			{ScrimID: "s1", UserID: "no-prefs", State: domain.ApplicationStateAccepted},
		},
	}
}

func newTestSubscribers(dir *fakeDirectory, notifier Notifier) *Subscribers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSubscribers(dir, dir, notifier, 2, logger)
}

func header() domain.EventHeader {
	return domain.EventHeader{ScrimID: "s1", OrganizerID: "org", Game: "valorant", ScheduledAt: time.Now().Add(time.Hour)}
}

func TestSubscribers_LobbyFormedReachesPendingAndAccepted(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{}
	subs := newTestSubscribers(dir, notifier)

	require.NoError(t, subs.onLobbyFormed(context.Background(), domain.LobbyFormed{EventHeader: header()}))
	assert.Equal(t, []string{"accepted", "org", "pending"}, notifier.recipients())
}

func TestSubscribers_LifecycleEventsReachAcceptedOnly(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{}
	subs := newTestSubscribers(dir, notifier)

	require.NoError(t, subs.notifyParticipants(context.Background(), KindScrimCancelled, header(), "Scrim cancelled"))
	assert.Equal(t, []string{"accepted", "org"}, notifier.recipients())
	assert.Equal(t, KindScrimCancelled, notifier.sent[0].Kind)
	assert.Equal(t, "Scrim cancelled: valorant", notifier.sent[0].Subject)
}

func TestSubscribers_ScrimCreatedMatchesSearchPreferences(t *testing.T) {
	match := domain.DefaultPreferences()
	match.SearchGame = "VALORANT"
	match.SearchRegion = "latam"

	otherGame := domain.DefaultPreferences()
	otherGame.SearchGame = "cs2"

	orgPrefs := domain.DefaultPreferences()
	orgPrefs.SearchGame = "valorant"

	dir := &fakeDirectory{users: []domain.User{
		user("org", orgPrefs),
		user("fan", match),
		user("other", otherGame),
		user("anything", domain.DefaultPreferences()),
	}}
	notifier := &fakeNotifier{}
	subs := newTestSubscribers(dir, notifier)

	evt := domain.ScrimCreated{EventHeader: header(), Region: "LATAM"}
	require.NoError(t, subs.onScrimCreated(context.Background(), evt))
	assert.Equal(t, []string{"anything", "fan"}, notifier.recipients())
}

func TestSubscribers_ApplicationEventsReachOneUser(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{}
	subs := newTestSubscribers(dir, notifier)
	ctx := context.Background()

	require.NoError(t, subs.onApplicationSubmitted(ctx, domain.ApplicationSubmitted{EventHeader: header(), UserID: "pending"}))
	require.NoError(t, subs.onApplicationAccepted(ctx, domain.ApplicationAccepted{EventHeader: header(), UserID: "accepted"}))
	require.NoError(t, subs.onApplicationRejected(ctx, domain.ApplicationRejected{EventHeader: header(), UserID: "ghost"}))

	assert.Equal(t, []string{"accepted", "org"}, notifier.recipients())
}

func TestSubscribers_SendReminderReportsFailures(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{fail: map[string]bool{"accepted": true}}
	subs := newTestSubscribers(dir, notifier)

	scrim := domain.Scrim{ID: "s1", OrganizerID: "org", Game: "valorant", ScheduledAt: time.Now().Add(time.Hour)}
	err := subs.SendReminder(context.Background(), scrim)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepted")
	assert.Equal(t, []string{"muted", "org"}, notifier.recipients(), "reminders follow the reminder switch, not scrim alerts")
}

func TestSubscribers_FanOutJoinsEveryFailure(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{fail: map[string]bool{"accepted": true, "org": true}}
	subs := newTestSubscribers(dir, notifier)

	err := subs.onLobbyFormed(context.Background(), domain.LobbyFormed{EventHeader: header()})
	require.Error(t, err)
	assert.ErrorContains(t, err, "notifying accepted")
	assert.ErrorContains(t, err, "notifying org")
	assert.Equal(t, []string{"pending"}, notifier.recipients(), "one failure does not stop the other deliveries")
}

func TestSubscribers_RegisterWiresBus(t *testing.T) {
	dir := newDirectory()
	notifier := &fakeNotifier{}
	subs := newTestSubscribers(dir, notifier)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := eventbus.NewBus(&config.EventBusConfig{Workers: 2, QueueSize: 16}, logger)
	subs.Register(bus)
	bus.Start()

	bus.Publish(domain.ScrimFinished{EventHeader: header()})
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, []string{"accepted", "org"}, notifier.recipients())
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, n.Send(context.Background(), Notification{Kind: KindReminder, RecipientID: "u1"}))
}
