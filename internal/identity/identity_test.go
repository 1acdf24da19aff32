package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/messenger/messengertest"
	"github.com/ashureev/whisper-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo wraps a MemoryStore and counts CreateUser calls.
type countingRepo struct {
	*store.MemoryStore
	mu      sync.Mutex
	creates int
	// racer, when set, inserts a competing record before the first create.
	racer *domain.User
}

func (c *countingRepo) CreateUser(ctx context.Context, user *domain.User) error {
	c.mu.Lock()
	c.creates++
	racer := c.racer
	c.racer = nil
	c.mu.Unlock()
	if racer != nil {
		if err := c.MemoryStore.CreateUser(ctx, racer); err != nil {
			return err
		}
	}
	return c.MemoryStore.CreateUser(ctx, user)
}

func (c *countingRepo) createCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

func newEvent(id int64) domain.Event {
	return domain.Event{
		Kind:   domain.EventCommand,
		Sender: domain.Sender{ID: id, FirstName: "Masha", LastName: "Ivanova"},
		ChatID: id,
	}
}

func TestResolveCreatesUnseenUserOnce(t *testing.T) {
	repo := &countingRepo{MemoryStore: store.NewMemory()}
	profiles := messengertest.New()
	profiles.Images[7] = "photo-7"
	r := NewResolver(repo, profiles, nil)

	first, err := r.Resolve(context.Background(), newEvent(7))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, first.Role)
	assert.Equal(t, "Masha Ivanova", first.DisplayName())
	assert.Equal(t, "photo-7", first.ProfileImageRef)

	for i := 0; i < 3; i++ {
		again, err := r.Resolve(context.Background(), newEvent(7))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
	}
	assert.Equal(t, 1, repo.createCount())
}

func TestResolveToleratesProfileImageFailure(t *testing.T) {
	repo := store.NewMemory()
	profiles := messengertest.New()
	profiles.ImageErr = errors.New("photos unavailable")
	r := NewResolver(repo, profiles, nil)

	user, err := r.Resolve(context.Background(), newEvent(8))
	require.NoError(t, err)
	assert.Empty(t, user.ProfileImageRef)
}

func TestResolveConcurrentFirstSightKeepsExistingRecord(t *testing.T) {
	repo := &countingRepo{
		MemoryStore: store.NewMemory(),
		racer:       &domain.User{ID: 9, FirstName: "Winner", Role: domain.RoleAdmin},
	}
	r := NewResolver(repo, nil, nil)

	user, err := r.Resolve(context.Background(), newEvent(9))
	require.NoError(t, err)
	assert.Equal(t, "Winner", user.FirstName)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}

func TestResolveRejectsMissingSender(t *testing.T) {
	r := NewResolver(store.NewMemory(), nil, nil)
	_, err := r.Resolve(context.Background(), domain.Event{Kind: domain.EventText})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestMiddlewareDropsBlockedUsers(t *testing.T) {
	repo := store.NewMemory()
	require.NoError(t, repo.CreateUser(context.Background(), &domain.User{ID: 5, FirstName: "Spam", Role: domain.RoleBlocked}))
	r := NewResolver(repo, nil, nil)

	called := false
	h := Middleware(r)(func(context.Context, domain.IdentifiedEvent) error {
		called = true
		return nil
	})

	require.NoError(t, h(context.Background(), newEvent(5)))
	assert.False(t, called)
}

func TestMiddlewarePassesIdentifiedEvent(t *testing.T) {
	repo := store.NewMemory()
	require.NoError(t, repo.CreateUser(context.Background(), &domain.User{ID: 6, FirstName: "Boss", Role: domain.RoleAdmin}))
	r := NewResolver(repo, nil, nil)

	var got domain.IdentifiedEvent
	h := Middleware(r)(func(_ context.Context, ev domain.IdentifiedEvent) error {
		got = ev
		return nil
	})

	ev := newEvent(6)
	ev.Text = "/menu"
	require.NoError(t, h(context.Background(), ev))
	require.NotNil(t, got.User)
	assert.Equal(t, int64(6), got.User.ID)
	assert.Equal(t, "/menu", got.Text)
}
