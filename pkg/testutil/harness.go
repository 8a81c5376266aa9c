package testutil

import (
	"fmt"

	"irfan/internal/clock"
	"irfan/internal/config"
	"irfan/internal/device"
	"irfan/internal/ha"
	"irfan/pkg/actuator"

	"go.uber.org/zap"
)

// TestEnv provides a complete test environment: a mock HA server, a real
// connected websocket client and running devices built from a device file
type TestEnv struct {
	Server  *MockHAServer
	Client  *ha.Client
	Manager *device.Manager
	Logger  *zap.Logger
}

// NewTestEnv creates a fully configured test environment from the contents
// of a devices.yaml file. Every ha-transport blaster is registered on the
// mock server.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv("test_token", devicesYAML)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
func NewTestEnv(token, devicesYAML string) (*TestEnv, error) {
	logger := zap.NewNop()

	cfg, err := config.Parse([]byte(devicesYAML))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(logger); err != nil {
		return nil, err
	}

	server := NewMockHAServer(token)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}
	for _, d := range cfg.Devices {
		if d.Transport == actuator.TransportHA {
			server.AddRemote(d.IRBlasterEntity)
		}
	}

	client := ha.NewClient(server.URL(), token, logger)
	if err := client.Connect(); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	manager, err := device.Build(cfg,
		actuator.NewDefaultRegistry(),
		actuator.NewContext(client, nil, logger, false),
		ha.NewServiceRunner(client, logger),
		clock.NewRealClock(),
		logger)
	if err != nil {
		client.Disconnect()
		server.Stop()
		return nil, fmt.Errorf("failed to build devices: %w", err)
	}
	if err := manager.Start(); err != nil {
		client.Disconnect()
		server.Stop()
		return nil, fmt.Errorf("failed to start devices: %w", err)
	}

	return &TestEnv{
		Server:  server,
		Client:  client,
		Manager: manager,
		Logger:  logger,
	}, nil
}

// Device returns the named device or panics; for tests
func (e *TestEnv) Device(name string) *device.Device {
	d, ok := e.Manager.Get(name)
	if !ok {
		panic(fmt.Sprintf("testutil: unknown device %q", name))
	}
	return d
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv
func (e *TestEnv) Cleanup() {
	e.Manager.Stop()
	e.Client.Disconnect()
	e.Server.Stop()
}

// GetServiceCalls returns all service calls made to the mock server
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.Server.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls
func (e *TestEnv) ClearServiceCalls() {
	e.Server.ClearServiceCalls()
}
