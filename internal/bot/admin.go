package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/ashureev/whisper-relay/internal/messenger"
	"github.com/ashureev/whisper-relay/internal/store"
)

const (
	blockCommand   = "block"
	unblockCommand = "unblock"

	doneText     = "Готово"
	usageFormat  = "Использование: /%s <id>"
	unknownText  = "Пользователь не найден"
	selfRoleText = "Нельзя изменить собственную роль"
)

// SessionResetter drops a user's in-flight session.
type SessionResetter interface {
	Reset(ownerID int64)
}

// DirectoryCache forgets cached recipient lists.
type DirectoryCache interface {
	Forget(ctx context.Context, requesterIDs ...int64)
}

// Admin implements role management commands. Commands from non-admins are
// ignored without a reply.
type Admin struct {
	repo      store.Repository
	sessions  SessionResetter
	directory DirectoryCache
	msgr      messenger.Messenger
}

// NewAdmin creates an Admin. dir may be nil.
func NewAdmin(repo store.Repository, sessions SessionResetter, dir DirectoryCache, msgr messenger.Messenger) *Admin {
	return &Admin{repo: repo, sessions: sessions, directory: dir, msgr: msgr}
}

// Block handles /block <id>.
func (a *Admin) Block(ctx context.Context, ev domain.IdentifiedEvent) error {
	return a.setRole(ctx, ev, blockCommand, domain.RoleBlocked)
}

// Unblock handles /unblock <id>.
func (a *Admin) Unblock(ctx context.Context, ev domain.IdentifiedEvent) error {
	return a.setRole(ctx, ev, unblockCommand, domain.RoleUser)
}

func (a *Admin) setRole(ctx context.Context, ev domain.IdentifiedEvent, cmd string, role domain.Role) error {
	if !ev.User.IsAdmin() {
		slog.Debug("Ignoring admin command from non-admin", "user_id", ev.User.ID, "command", cmd)
		return nil
	}

	chatID := replyChat(ev)
	target, err := strconv.ParseInt(strings.TrimSpace(ev.Args), 10, 64)
	if err != nil || target == 0 {
		return a.reply(ctx, chatID, fmt.Sprintf(usageFormat, cmd))
	}
	if target == ev.User.ID {
		return a.reply(ctx, chatID, selfRoleText)
	}

	if err := a.repo.SetRole(ctx, target, role); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return a.reply(ctx, chatID, unknownText)
		}
		return fmt.Errorf("set role of %d: %w", target, err)
	}
	if role == domain.RoleBlocked {
		a.sessions.Reset(target)
	}
	if a.directory != nil {
		a.directory.Forget(ctx, ev.User.ID)
	}

	slog.Info("Role changed", "admin_id", ev.User.ID, "user_id", target, "role", string(role))
	return a.reply(ctx, chatID, doneText)
}

func (a *Admin) reply(ctx context.Context, chatID int64, text string) error {
	if _, err := a.msgr.Send(ctx, messenger.Message{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("send admin reply: %w", err)
	}
	return nil
}

// PromoteAdmins grants the admin role to every listed user that already
// exists. Unknown ids are skipped; they can be promoted after their first
// contact by restarting with the same list.
func PromoteAdmins(ctx context.Context, repo store.Repository, ids []int64) (int, error) {
	promoted := 0
	for _, id := range ids {
		user, err := repo.GetUser(ctx, id)
		if err != nil {
			return promoted, fmt.Errorf("get admin candidate %d: %w", id, err)
		}
		if user == nil {
			slog.Warn("Admin id has no user record yet", "user_id", id)
			continue
		}
		if user.IsAdmin() {
			continue
		}
		if err := repo.SetRole(ctx, id, domain.RoleAdmin); err != nil {
			return promoted, fmt.Errorf("promote %d: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}
