// Package directory answers recipient-selection queries with the list of
// community members a sender can write to.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/whisper-relay/internal/cache"
	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/messenger"
	"github.com/ashureev/whisper-relay/internal/metrics"
	"github.com/ashureev/whisper-relay/internal/store"
)

const (
	// QueryToken is the exact query text that lists recipients.
	QueryToken = "list"
	// DefaultCacheTTL is how long an answer may be reused.
	DefaultCacheTTL = 10 * time.Second
	// WritePrefix starts the action payload of every result button.
	WritePrefix = "write"

	writeButtonText = "Написать"
)

// Directory builds personalized recipient lists.
type Directory struct {
	repo    store.Repository
	cache   cache.Cache
	msgr    messenger.Messenger
	ttl     time.Duration
	metrics *metrics.Metrics
}

// New creates a Directory. c may be nil to disable local caching; a
// non-positive ttl falls back to DefaultCacheTTL.
func New(repo store.Repository, c cache.Cache, msgr messenger.Messenger, ttl time.Duration, m *metrics.Metrics) *Directory {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Directory{repo: repo, cache: c, msgr: msgr, ttl: ttl, metrics: m}
}

// Matches reports whether query selects the directory.
func Matches(query string) bool {
	return query == QueryToken
}

// WritePayload returns the action payload that starts composing to id.
func WritePayload(id int64) string {
	return WritePrefix + " " + strconv.FormatInt(id, 10)
}

// Answer replies to a recipient-selection query.
func (d *Directory) Answer(ctx context.Context, ev domain.IdentifiedEvent) error {
	results, err := d.Results(ctx, ev.User.ID)
	if err != nil {
		return err
	}
	return d.msgr.AnswerQuery(ctx, messenger.QueryAnswer{
		QueryID:   ev.CallbackID,
		Results:   results,
		CacheTime: int(d.ttl / time.Second),
		Personal:  true,
	})
}

// Results returns the recipient list for requesterID, from cache when a
// fresh copy exists.
func (d *Directory) Results(ctx context.Context, requesterID int64) ([]messenger.QueryResult, error) {
	key := cacheKey(requesterID)

	if cached, ok := d.fromCache(ctx, key); ok {
		d.metrics.RecordDirectoryLookup("hit")
		return cached, nil
	}
	d.metrics.RecordDirectoryLookup("miss")

	members, err := d.repo.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	results := BuildResults(members)

	if d.cache != nil {
		raw, err := json.Marshal(results)
		if err != nil {
			return nil, fmt.Errorf("encode directory: %w", err)
		}
		if err := d.cache.Set(ctx, key, string(raw), d.ttl); err != nil {
			slog.Warn("Directory cache write failed", "key", key, "error", err)
		}
	}
	return results, nil
}

// Forget drops the cached list of each requester so their next query sees
// current membership.
func (d *Directory) Forget(ctx context.Context, requesterIDs ...int64) {
	if d.cache == nil || len(requesterIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(requesterIDs))
	for _, id := range requesterIDs {
		keys = append(keys, cacheKey(id))
	}
	if _, err := d.cache.Del(ctx, keys...); err != nil {
		slog.Warn("Directory cache invalidation failed", "error", err)
	}
}

func (d *Directory) fromCache(ctx context.Context, key string) ([]messenger.QueryResult, bool) {
	if d.cache == nil {
		return nil, false
	}
	raw, err := d.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("Directory cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results []messenger.QueryResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		slog.Warn("Discarding undecodable directory cache entry", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

// BuildResults renders members in the given order.
func BuildResults(members []*domain.User) []messenger.QueryResult {
	results := make([]messenger.QueryResult, 0, len(members))
	for _, u := range members {
		name := u.DisplayName()
		r := messenger.QueryResult{
			ID:          strconv.FormatInt(u.ID, 10),
			Title:       name,
			MessageText: writeButtonText + " " + name,
			Controls: messenger.Row(messenger.Button{
				Text:    writeButtonText,
				Payload: WritePayload(u.ID),
			}),
		}
		if strings.HasPrefix(u.ProfileImageRef, "http://") || strings.HasPrefix(u.ProfileImageRef, "https://") {
			r.ThumbURL = u.ProfileImageRef
		}
		results = append(results, r)
	}
	return results
}

func cacheKey(requesterID int64) string {
	return "directory:" + strconv.FormatInt(requesterID, 10) + ":" + QueryToken
}
