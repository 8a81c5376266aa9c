package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"irfan/internal/api"
	"irfan/internal/clock"
	"irfan/internal/config"
	"irfan/internal/device"
	"irfan/internal/ha"
	"irfan/internal/macro"
	"irfan/internal/mqtt"
	"irfan/pkg/actuator"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errNoScriptRunner = errors.New("macros need a Home Assistant connection")

func serveCommand(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	defer logger.Sync()

	readOnly := c.Bool("read-only")
	logger.Info("Starting irfan", zap.Bool("read_only", readOnly))

	cfg, err := config.NewLoader(c.String("config-file"), logger).Load()
	if err != nil {
		return err
	}
	transports := cfg.Transports()

	var caller ha.ServiceCaller
	if lo.Contains(transports, actuator.TransportHA) || c.String("ha-url") != "" {
		haClient, err := connectHA(c, logger)
		if err != nil {
			return err
		}
		defer haClient.Disconnect()
		caller = haClient
		checkBlasters(c.Context, haClient, cfg, logger)
	}

	var publisher mqtt.Publisher
	if lo.Contains(transports, actuator.TransportMQTT) || c.String("mqtt-broker") != "" {
		mqttClient, err := connectMQTT(c, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Close()
		publisher = mqttClient
	}

	var runner macro.Runner = macro.RunnerFunc(func(ctx context.Context, name string, _ macro.Value) error {
		return fmt.Errorf("macro %q: %w", name, errNoScriptRunner)
	})
	if caller != nil {
		runner = ha.NewServiceRunner(caller, logger)
	}
	if readOnly {
		runner = readOnlyRunner(logger)
	}

	actx := actuator.NewContext(caller, publisher, logger, readOnly)
	manager, err := device.Build(cfg, actuator.NewDefaultRegistry(), actx, runner, clock.NewRealClock(), logger)
	if err != nil {
		return fmt.Errorf("failed to build devices: %w", err)
	}

	if publisher != nil {
		states := mqtt.NewStatePublisher(publisher, c.String("mqtt-topic-prefix"), logger)
		manager.Subscribe(func(s device.Snapshot) {
			if err := states.PublishState(s.Name, s.State); err != nil {
				logger.Warn("Failed to publish fan state", zap.String("device", s.Name), zap.Error(err))
			}
		})
	}

	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	server := api.NewServer(manager, logger, c.Int("api-port"))

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(server.ListenAndServe)
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		return server.Stop()
	})

	return eg.Wait()
}

func connectHA(c *cli.Context, logger *zap.Logger) (*ha.Client, error) {
	url, token := c.String("ha-url"), c.String("ha-token")
	if url == "" || token == "" {
		return nil, errors.New("HA_URL and HA_TOKEN must be set for the ha transport")
	}

	client := ha.NewClient(url, token, logger)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to Home Assistant: %w", err)
	}
	return client, nil
}

func connectMQTT(c *cli.Context, logger *zap.Logger) (*mqtt.Client, error) {
	broker := c.String("mqtt-broker")
	if broker == "" {
		return nil, errors.New("MQTT_BROKER must be set for the mqtt transport")
	}

	return mqtt.Connect(mqtt.Options{
		Broker:   broker,
		ClientID: c.String("mqtt-client-id"),
		Username: c.String("mqtt-user"),
		Password: c.String("mqtt-pass"),
	}, logger)
}

// checkBlasters warns about remote entities Home Assistant does not know
func checkBlasters(ctx context.Context, client ha.HAClient, cfg *config.Config, logger *zap.Logger) {
	for _, dc := range cfg.Devices {
		if dc.Transport != actuator.TransportHA {
			continue
		}
		if _, err := client.GetState(ctx, dc.IRBlasterEntity); err != nil {
			logger.Warn("IR blaster entity not available",
				zap.String("device", dc.Name),
				zap.String("entity_id", dc.IRBlasterEntity),
				zap.Error(err))
		}
	}
}

func readOnlyRunner(logger *zap.Logger) macro.Runner {
	return macro.RunnerFunc(func(ctx context.Context, name string, actions macro.Value) error {
		logger.Info("READ-ONLY: Would run macro actions",
			zap.String("macro", name),
			zap.Any("actions", macro.Any(actions)))
		return nil
	})
}
