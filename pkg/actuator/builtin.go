package actuator

import (
	"context"
	"fmt"

	"irfan/internal/codes"
	"irfan/internal/dispatch"
	"irfan/internal/ha"
	"irfan/internal/mqtt"

	"go.uber.org/zap"
)

// Built-in transport names.
const (
	TransportHA   = "ha"
	TransportMQTT = "mqtt"
)

// NewDefaultRegistry returns a registry holding the built-in transports.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-ins have valid names and factories; Register cannot fail here.
	_, _ = r.Register(Info{
		Name:        TransportHA,
		Description: "Home Assistant remote.send_command",
		Priority:    PriorityDefault,
		Factory: func(ctx *Context) (dispatch.Actuator, error) {
			if ctx.HAClient == nil {
				return nil, fmt.Errorf("home assistant connection not configured")
			}
			return ha.NewRemoteActuator(ctx.HAClient), nil
		},
	})
	_, _ = r.Register(Info{
		Name:        TransportMQTT,
		Description: "MQTT publish to the blaster topic",
		Priority:    PriorityDefault,
		Factory: func(ctx *Context) (dispatch.Actuator, error) {
			if ctx.Publisher == nil {
				return nil, fmt.Errorf("mqtt broker not configured")
			}
			return mqtt.NewActuator(ctx.Publisher), nil
		},
	})
	return r
}

// readOnly logs payloads instead of sending them.
type readOnly struct {
	transport string
	logger    *zap.Logger
}

func newReadOnly(transport string, logger *zap.Logger) *readOnly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &readOnly{transport: transport, logger: logger.Named("readonly")}
}

func (a *readOnly) Send(ctx context.Context, blaster string, payload codes.ActionCode) error {
	a.logger.Info("READ-ONLY: Would send IR code",
		zap.String("transport", a.transport),
		zap.String("blaster", blaster),
		zap.String("payload", string(payload)))
	return nil
}
