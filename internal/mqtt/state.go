package mqtt

import (
	"encoding/json"
	"fmt"

	"irfan/internal/fan"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// DefaultTopicPrefix is the root of every state topic
const DefaultTopicPrefix = "irfan"

// StatePayload is the retained JSON document published for each device
type StatePayload struct {
	Device      string `json:"device"`
	Power       bool   `json:"power"`
	Percentage  int    `json:"percentage"`
	PresetMode  string `json:"preset_mode"`
	Oscillating bool   `json:"oscillating"`
	Heat        bool   `json:"heat"`
}

// StatePublisher mirrors believed fan state to retained MQTT topics
type StatePublisher struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewStatePublisher creates a state publisher. An empty prefix selects
// DefaultTopicPrefix
func NewStatePublisher(pub Publisher, prefix string, logger *zap.Logger) *StatePublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &StatePublisher{
		pub:    pub,
		prefix: prefix,
		logger: logger.Named("state"),
	}
}

// Topic returns the state topic for a device name
func (p *StatePublisher) Topic(device string) string {
	return fmt.Sprintf("%s/%s/state", p.prefix, slug.Make(device))
}

// PublishState publishes s as the retained state of device
func (p *StatePublisher) PublishState(device string, s fan.State) error {
	payload, err := json.Marshal(StatePayload{
		Device:      device,
		Power:       s.Power,
		Percentage:  s.Percentage(),
		PresetMode:  s.PresetMode(),
		Oscillating: s.Oscillating,
		Heat:        s.Heat,
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	topic := p.Topic(device)
	if err := p.pub.Publish(topic, 1, true, payload); err != nil {
		return err
	}

	p.logger.Debug("Published state", zap.String("device", device), zap.String("topic", topic))
	return nil
}
