package ha

import (
	"context"
	"fmt"

	"irfan/internal/codes"
)

// ServiceCaller is the part of HAClient used to drive an IR blaster
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]interface{}) error
}

// RemoteActuator sends IR payloads through a Home Assistant remote entity
// using remote.send_command
type RemoteActuator struct {
	client ServiceCaller
}

// NewRemoteActuator creates an actuator backed by client
func NewRemoteActuator(client ServiceCaller) *RemoteActuator {
	return &RemoteActuator{client: client}
}

// Send emits payload through the remote entity named by blaster
func (a *RemoteActuator) Send(ctx context.Context, blaster string, payload codes.ActionCode) error {
	err := a.client.CallService(ctx, "remote", "send_command", map[string]interface{}{
		"entity_id": blaster,
		"command":   []string{string(payload)},
	})
	if err != nil {
		return fmt.Errorf("remote.send_command on %s: %w", blaster, err)
	}
	return nil
}
