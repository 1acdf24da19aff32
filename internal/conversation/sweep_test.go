package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/whisper-relay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStartSweeperRetiresIdleSessions(t *testing.T) {
	s := NewStore(nil)
	s.Put(domain.NewComposeSession(1, 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartSweeper(ctx, s, time.Nanosecond, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStartSweeperDisabled(t *testing.T) {
	s := NewStore(nil)
	s.Put(domain.NewComposeSession(1, 2))

	StartSweeper(context.Background(), s, 0, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.Len())
}
