package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/whisper-relay/internal/messenger/messengertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverSendsVerbatimOnce(t *testing.T) {
	rec := messengertest.New()
	r := New(rec, nil)

	require.NoError(t, r.Deliver(context.Background(), 42, "hello\n\nпроверено"))

	sent := rec.SentTo(42)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello\n\nпроверено", sent[0].Text)
	assert.Empty(t, sent[0].Controls)
	assert.Len(t, rec.Sent, 1)
}

func TestDeliverPropagatesTransportError(t *testing.T) {
	rec := messengertest.New()
	rec.SendErr = errors.New("Forbidden: bot was blocked by the user")
	r := New(rec, nil)

	err := r.Deliver(context.Background(), 42, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, rec.SendErr)
	assert.Empty(t, rec.Sent)
}
