package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine; flags fall back to the process environment.
	_ = godotenv.Load()

	configFlag := &cli.StringFlag{
		Name:    "config-file",
		Aliases: []string{"c"},
		EnvVars: []string{"CONFIG_FILE"},
		Value:   "configs/devices.yaml",
		Usage:   "path to the device file",
	}
	logLevelFlag := &cli.StringFlag{
		Name:    "log-level",
		EnvVars: []string{"LOG_LEVEL"},
		Value:   "info",
	}

	app := &cli.App{
		Name:  "irfan",
		Usage: "shadow-state controller for infrared fans",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the device workers and HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					configFlag,
					logLevelFlag,
					&cli.StringFlag{
						Name:    "ha-url",
						EnvVars: []string{"HA_URL"},
						Usage:   "Home Assistant websocket URL, e.g. ws://homeassistant.local:8123/api/websocket",
					},
					&cli.StringFlag{
						Name:    "ha-token",
						EnvVars: []string{"HA_TOKEN"},
					},
					&cli.StringFlag{
						Name:    "mqtt-broker",
						EnvVars: []string{"MQTT_BROKER"},
						Usage:   "MQTT broker URL, e.g. tcp://localhost:1883",
					},
					&cli.StringFlag{
						Name:    "mqtt-user",
						EnvVars: []string{"MQTT_USER"},
					},
					&cli.StringFlag{
						Name:    "mqtt-pass",
						EnvVars: []string{"MQTT_PASS"},
					},
					&cli.StringFlag{
						Name:    "mqtt-client-id",
						EnvVars: []string{"MQTT_CLIENT_ID"},
						Value:   "irfan",
					},
					&cli.StringFlag{
						Name:    "mqtt-topic-prefix",
						EnvVars: []string{"MQTT_TOPIC_PREFIX"},
						Value:   "irfan",
					},
					&cli.IntFlag{
						Name:    "api-port",
						EnvVars: []string{"API_PORT"},
						Value:   8081,
					},
					&cli.BoolFlag{
						Name:    "read-only",
						EnvVars: []string{"READ_ONLY"},
						Usage:   "log IR codes instead of sending them",
					},
				},
			},
			{
				Name:   "check",
				Usage:  "validate the device file and print a summary",
				Action: checkCommand,
				Flags:  []cli.Flag{configFlag, logLevelFlag},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
