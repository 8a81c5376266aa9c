// Package config loads and validates the IR fan device file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"irfan/internal/codes"
	"irfan/internal/macro"
	"irfan/pkg/actuator"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Device types
const (
	DeviceTypeAM09 = "AM09"
	DeviceTypeAM07 = "AM07"
	DeviceTypeAM11 = "AM11"
)

// DeviceTypes lists the supported device types
var DeviceTypes = []string{DeviceTypeAM09, DeviceTypeAM07, DeviceTypeAM11}

const (
	defaultDeviceType     = DeviceTypeAM09
	defaultTransport      = actuator.TransportHA
	defaultUpdateInterval = 300
)

// Validation errors
var (
	ErrNoDevices         = errors.New("no devices configured")
	ErrDuplicateDevice   = errors.New("duplicate device name")
	ErrUnknownDeviceType = errors.New("unknown device type")
	ErrMissingBlaster    = errors.New("missing ir_blaster_entity")
	ErrUnknownTransport  = errors.New("unknown transport")
	ErrMissingCode       = errors.New("missing required IR code")
	ErrInvalidMacro      = errors.New("invalid macro")
	ErrInvalidName       = errors.New("invalid device name")
)

// ActionConfig is one named macro entry
type ActionConfig struct {
	Name   string `yaml:"name"`
	IRCode string `yaml:"ir_code"`
}

// DeviceConfig represents one fan in devices.yaml
type DeviceConfig struct {
	Name            string            `yaml:"name"`
	DeviceType      string            `yaml:"device_type"`
	Transport       string            `yaml:"transport"`
	IRBlasterEntity string            `yaml:"ir_blaster_entity"`
	IRCodes         map[string]string `yaml:"ir_codes"`
	Actions         []ActionConfig    `yaml:"actions"`
	BlasterAction   interface{}       `yaml:"blaster_action"`
	UpdateInterval  int               `yaml:"update_interval"`
}

// Config represents the devices.yaml structure
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// Loader reads the device file
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:   path,
		logger: logger.Named("config"),
	}
}

// Load reads, parses and validates the device file
func (l *Loader) Load() (*Config, error) {
	l.logger.Debug("Loading device config", zap.String("path", l.path))

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(l.logger); err != nil {
		return nil, err
	}

	l.logger.Info("Device config loaded successfully", zap.Int("devices", len(cfg.Devices)))
	return cfg, nil
}

// Parse decodes device file contents and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse device config: %w", err)
	}

	for i := range cfg.Devices {
		cfg.Devices[i].applyDefaults()
	}
	return &cfg, nil
}

func (d *DeviceConfig) applyDefaults() {
	d.Name = strings.TrimSpace(d.Name)
	if d.DeviceType == "" {
		d.DeviceType = defaultDeviceType
	}
	if d.Transport == "" {
		d.Transport = defaultTransport
	}
	if d.UpdateInterval <= 0 {
		d.UpdateInterval = defaultUpdateInterval
	}
}

// Validate checks every device. Problems that leave a usable device, such
// as heat codes on a model without heat, are logged as warnings
func (c *Config) Validate(logger *zap.Logger) error {
	if len(c.Devices) == 0 {
		return ErrNoDevices
	}

	dupes := lo.FindDuplicates(lo.Map(c.Devices, func(d DeviceConfig, _ int) string {
		return d.Name
	}))
	if len(dupes) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, strings.Join(dupes, ", "))
	}

	for _, d := range c.Devices {
		if err := d.validate(logger); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}
	return nil
}

func (d DeviceConfig) validate(logger *zap.Logger) error {
	if d.Name == "" {
		return ErrInvalidName
	}
	if !lo.Contains(DeviceTypes, d.DeviceType) {
		return fmt.Errorf("%w: %s", ErrUnknownDeviceType, d.DeviceType)
	}
	if !lo.Contains([]string{actuator.TransportHA, actuator.TransportMQTT}, d.Transport) {
		return fmt.Errorf("%w: %s", ErrUnknownTransport, d.Transport)
	}
	if strings.TrimSpace(d.IRBlasterEntity) == "" {
		return ErrMissingBlaster
	}

	missing := codes.NewTable(d.primitives(), nil).Missing(codes.RequiredKeys)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCode, strings.Join(lo.Map(missing, func(k codes.Key, _ int) string {
			return string(k)
		}), ", "))
	}

	unknown := lo.Filter(lo.Keys(d.IRCodes), func(k string, _ int) bool {
		return !codes.IsKnown(codes.Key(k))
	})
	if len(unknown) > 0 {
		logger.Warn("Ignoring unknown IR code keys",
			zap.String("device", d.Name),
			zap.Strings("keys", unknown))
	}

	if d.DeviceType != DeviceTypeAM09 && (d.IRCodes[string(codes.HeatOn)] != "" || d.IRCodes[string(codes.HeatOff)] != "") {
		logger.Warn("Heat codes are only used by AM09, ignoring",
			zap.String("device", d.Name),
			zap.String("device_type", d.DeviceType))
	}

	names := lo.Map(d.Actions, func(a ActionConfig, _ int) string { return strings.TrimSpace(a.Name) })
	if lo.Contains(names, "") {
		return fmt.Errorf("%w: empty name", ErrInvalidMacro)
	}
	if dupes := lo.FindDuplicates(names); len(dupes) > 0 {
		return fmt.Errorf("%w: duplicate name %s", ErrInvalidMacro, strings.Join(dupes, ", "))
	}

	tmpl, err := d.Template()
	if err != nil {
		return err
	}
	if tmpl != nil && !macro.HasSentinel(tmpl) {
		logger.Warn("blaster_action has no IR_CODE placeholder, every macro runs the same actions",
			zap.String("device", d.Name))
	}
	return nil
}

// primitives returns the configured codes keyed by primitive key. Heat codes
// are dropped for models without a heater
func (d DeviceConfig) primitives() map[codes.Key]codes.ActionCode {
	out := make(map[codes.Key]codes.ActionCode, len(d.IRCodes))
	for k, v := range d.IRCodes {
		key := codes.Key(k)
		if (key == codes.HeatOn || key == codes.HeatOff) && d.DeviceType != DeviceTypeAM09 {
			continue
		}
		out[key] = codes.ActionCode(strings.TrimSpace(v))
	}
	return out
}

// Table builds the device's code table
func (d DeviceConfig) Table() *codes.Table {
	macros := lo.Map(d.Actions, func(a ActionConfig, _ int) codes.Macro {
		return codes.Macro{Name: strings.TrimSpace(a.Name), Code: codes.ActionCode(strings.TrimSpace(a.IRCode))}
	})
	return codes.NewTable(d.primitives(), macros)
}

// Template converts blaster_action into a macro template. It returns nil
// when no template is configured
func (d DeviceConfig) Template() (macro.Value, error) {
	if d.BlasterAction == nil {
		return nil, nil
	}
	v, err := macro.FromAny(d.BlasterAction)
	if err != nil {
		return nil, fmt.Errorf("%w: blaster_action: %v", ErrInvalidMacro, err)
	}
	return v, nil
}

// Interval returns the poll interval
func (d DeviceConfig) Interval() time.Duration {
	return time.Duration(d.UpdateInterval) * time.Second
}

// Transports returns the distinct transports used by the devices
func (c *Config) Transports() []string {
	return lo.Uniq(lo.Map(c.Devices, func(d DeviceConfig, _ int) string { return d.Transport }))
}

// Device returns the named device config
func (c *Config) Device(name string) (DeviceConfig, bool) {
	return lo.Find(c.Devices, func(d DeviceConfig) bool { return d.Name == name })
}
