package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "session-events", map[string]any{"state": "finished"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "session-events", msgs[0].Topic)
}

func TestPublisherMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "a", 1)
	require.NoError(t, err)

	msgs := p.Messages()
	msgs[0].Topic = "mutated"
	require.Equal(t, "a", p.Messages()[0].Topic)
}
