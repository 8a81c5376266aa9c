package actuator

import (
	"irfan/internal/ha"
	"irfan/internal/mqtt"

	"go.uber.org/zap"
)

// Context provides the connections transports are built from.
//
// Either connection may be nil when it is not configured; factories for a
// transport whose connection is missing return an error.
type Context struct {
	// HAClient calls Home Assistant services.
	HAClient ha.ServiceCaller

	// Publisher publishes to the MQTT broker.
	Publisher mqtt.Publisher

	// Logger is a structured logger for the transport to use.
	Logger *zap.Logger

	// ReadOnly indicates whether the application is in read-only mode.
	// When true, transports log what they would send instead of sending.
	ReadOnly bool
}

// NewContext creates a new transport context.
func NewContext(haClient ha.ServiceCaller, publisher mqtt.Publisher, logger *zap.Logger, readOnly bool) *Context {
	return &Context{
		HAClient:  haClient,
		Publisher: publisher,
		Logger:    logger,
		ReadOnly:  readOnly,
	}
}
