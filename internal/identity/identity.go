// Package identity resolves inbound events to stored users and enforces
// the blocked-role gate.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/metrics"
	"github.com/ashureev/whisper-relay/internal/store"
)

// ErrNoSender is returned for events that carry no originating user.
var ErrNoSender = errors.New("event has no sender")

// ProfileSource looks up a user's profile image on the platform.
type ProfileSource interface {
	ProfileImage(ctx context.Context, userID int64) (string, error)
}

// Resolver maps event senders to users, creating them on first sight.
type Resolver struct {
	repo     store.Repository
	profiles ProfileSource
	metrics  *metrics.Metrics
}

// NewResolver creates a Resolver. profiles and m may be nil.
func NewResolver(repo store.Repository, profiles ProfileSource, m *metrics.Metrics) *Resolver {
	return &Resolver{repo: repo, profiles: profiles, metrics: m}
}

// Resolve returns the stored user for the event's sender. Unknown senders
// are created with the default role; known senders are only read.
func (r *Resolver) Resolve(ctx context.Context, ev domain.Event) (*domain.User, error) {
	if ev.Sender.ID == 0 {
		return nil, ErrNoSender
	}

	user, err := r.repo.GetUser(ctx, ev.Sender.ID)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", ev.Sender.ID, err)
	}
	if user != nil {
		return user, nil
	}
	return r.ensureUser(ctx, ev.Sender)
}

func (r *Resolver) ensureUser(ctx context.Context, sender domain.Sender) (*domain.User, error) {
	user := &domain.User{
		ID:              sender.ID,
		Role:            domain.RoleUser,
		FirstName:       sender.FirstName,
		SecondName:      sender.LastName,
		ProfileImageRef: r.profileImage(ctx, sender.ID),
		CreatedAt:       time.Now(),
	}

	err := r.repo.CreateUser(ctx, user)
	if errors.Is(err, store.ErrUserExists) {
		// Another process saw this sender first; its record wins.
		existing, getErr := r.repo.GetUser(ctx, sender.ID)
		if getErr != nil {
			return nil, fmt.Errorf("reload user %d: %w", sender.ID, getErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("reload user %d: %w", sender.ID, store.ErrUserNotFound)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create user %d: %w", sender.ID, err)
	}

	r.metrics.RecordUserCreated()
	slog.Info("User created", "user_id", user.ID, "has_profile_image", user.ProfileImageRef != "")
	return user, nil
}

func (r *Resolver) profileImage(ctx context.Context, userID int64) string {
	if r.profiles == nil {
		return ""
	}
	ref, err := r.profiles.ProfileImage(ctx, userID)
	if err != nil {
		slog.Warn("Profile image lookup failed", "user_id", userID, "error", err)
		return ""
	}
	return ref
}

// Next handles an event whose sender has been resolved.
type Next func(ctx context.Context, ev domain.IdentifiedEvent) error

// Handler handles a raw inbound event.
type Handler func(ctx context.Context, ev domain.Event) error

// Middleware resolves the sender of every event before calling next.
// Events from blocked users are discarded without error or reply.
func Middleware(r *Resolver) func(Next) Handler {
	return func(next Next) Handler {
		return func(ctx context.Context, ev domain.Event) error {
			user, err := r.Resolve(ctx, ev)
			if err != nil {
				return err
			}
			if user.IsBlocked() {
				r.metrics.RecordDropped("blocked")
				slog.Debug("Dropping event from blocked user", "user_id", user.ID, "kind", ev.Kind.String())
				return nil
			}
			return next(ctx, domain.IdentifiedEvent{Event: ev, User: user})
		}
	}
}
