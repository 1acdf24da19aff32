package bot

import (
	"context"
	"testing"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) promote(t *testing.T, id int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.repo.CreateUser(ctx, &domain.User{ID: id, FirstName: "Root"}))
	require.NoError(t, h.repo.SetRole(ctx, id, domain.RoleAdmin))
}

func (h *harness) role(t *testing.T, id int64) domain.Role {
	t.Helper()
	u, err := h.repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Role
}

func TestAdminBlockAndUnblock(t *testing.T) {
	h := newHarness(t)
	h.promote(t, admin)
	h.dispatch(t, cmd(bob, "start", ""))
	h.dispatch(t, action(bob, "write 11", 0))

	h.dispatch(t, cmd(admin, "block", "22"))
	assert.Equal(t, domain.RoleBlocked, h.role(t, bob))
	assert.Equal(t, domain.StateIdle, h.state(bob))
	assert.Equal(t, "Готово", h.rec.SentTo(admin)[0].Text)

	h.rec.Reset()
	h.dispatch(t, cmd(bob, "start", ""))
	assert.Zero(t, h.rec.Outputs())

	members, err := h.repo.ListMembers(context.Background())
	require.NoError(t, err)
	for _, m := range members {
		assert.NotEqual(t, bob, m.ID)
	}

	h.dispatch(t, cmd(admin, "unblock", "22"))
	assert.Equal(t, domain.RoleUser, h.role(t, bob))
}

func TestAdminSeesBlockInDirectoryImmediately(t *testing.T) {
	h := newHarness(t)
	h.promote(t, admin)
	h.dispatch(t, cmd(bob, "start", ""))

	h.dispatch(t, query(admin, "list"))
	require.Len(t, h.rec.Answers[0].Results, 2)

	h.dispatch(t, cmd(admin, "block", "22"))
	h.dispatch(t, query(admin, "list"))
	require.Len(t, h.rec.Answers, 2)
	require.Len(t, h.rec.Answers[1].Results, 1)
	assert.Equal(t, "33", h.rec.Answers[1].Results[0].ID)
}

func TestAdminCommandIgnoredForUsers(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, cmd(bob, "start", ""))
	h.rec.Reset()

	h.dispatch(t, cmd(alice, "block", "22"))
	assert.Equal(t, domain.RoleUser, h.role(t, bob))
	assert.Empty(t, h.rec.SentTo(alice))
}

func TestAdminCommandReplies(t *testing.T) {
	h := newHarness(t)
	h.promote(t, admin)

	cases := map[string]string{
		"":    "Использование: /block <id>",
		"abc": "Использование: /block <id>",
		"999": "Пользователь не найден",
		"33":  "Нельзя изменить собственную роль",
	}
	for args, want := range cases {
		h.rec.Reset()
		h.dispatch(t, cmd(admin, "block", args))
		sent := h.rec.SentTo(admin)
		require.Len(t, sent, 1, args)
		assert.Equal(t, want, sent[0].Text, args)
	}
	assert.Equal(t, domain.RoleAdmin, h.role(t, admin))
}

func TestPromoteAdmins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.repo.CreateUser(ctx, &domain.User{ID: alice, FirstName: "Alice"}))
	require.NoError(t, h.repo.CreateUser(ctx, &domain.User{ID: bob, FirstName: "Bob", Role: domain.RoleAdmin}))

	n, err := PromoteAdmins(ctx, h.repo, []int64{alice, bob, 404})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.RoleAdmin, h.role(t, alice))
	assert.Equal(t, domain.RoleAdmin, h.role(t, bob))
}
