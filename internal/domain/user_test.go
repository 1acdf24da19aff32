package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "first name only", user: User{FirstName: "Anna"}, want: "Anna"},
		{name: "first and second", user: User{FirstName: "Anna", SecondName: "Karenina"}, want: "Anna Karenina"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" ADMIN ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}
