package ha

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteActuator_Send(t *testing.T) {
	mock := NewMockClient()
	actuator := NewRemoteActuator(mock)

	err := actuator.Send(context.Background(), "remote.bedroom_blaster", "b64:JgBQAAAB")
	require.NoError(t, err)

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remote", calls[0].Domain)
	assert.Equal(t, "send_command", calls[0].Service)
	assert.Equal(t, "remote.bedroom_blaster", calls[0].Data["entity_id"])
	assert.Equal(t, []string{"b64:JgBQAAAB"}, calls[0].Data["command"])
}

func TestRemoteActuator_SendError(t *testing.T) {
	mock := NewMockClient()
	mock.FailCalls(errors.New("timeout waiting for response"))
	actuator := NewRemoteActuator(mock)

	err := actuator.Send(context.Background(), "remote.bedroom_blaster", "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote.bedroom_blaster")
	assert.Contains(t, err.Error(), "timeout waiting for response")
}
