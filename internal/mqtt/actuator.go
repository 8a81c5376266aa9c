package mqtt

import (
	"context"

	"irfan/internal/codes"
)

// Actuator sends IR payloads to a blaster that listens on an MQTT topic,
// such as a Tasmota or ESPHome IR bridge. The blaster identifier is the
// topic. Payloads go out at QoS 0 and are not retained
type Actuator struct {
	pub Publisher
}

// NewActuator creates an actuator publishing through pub
func NewActuator(pub Publisher) *Actuator {
	return &Actuator{pub: pub}
}

// Send publishes payload to the blaster topic
func (a *Actuator) Send(ctx context.Context, topic string, payload codes.ActionCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.pub.Publish(topic, 0, false, []byte(payload))
}
