package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"irfan/internal/clock"
	"irfan/internal/config"
	"irfan/internal/macro"
	"irfan/internal/shadowstate"
	"irfan/pkg/actuator"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// refreshTimeout bounds how long a poll waits for a busy device
const refreshTimeout = 30 * time.Second

// Manager owns all devices by name
type Manager struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	tracker *shadowstate.Tracker
	cron    *cron.Cron
	logger  *zap.Logger
	started bool

	// schedule registers a cron job; tests replace it
	schedule func(spec string, cmd func()) (cron.EntryID, error)
}

// NewManager creates an empty manager
func NewManager(logger *zap.Logger) *Manager {
	c := cron.New()
	return &Manager{
		devices:  make(map[string]*Device),
		tracker:  shadowstate.NewTracker(),
		cron:     c,
		logger:   logger.Named("manager"),
		schedule: c.AddFunc,
	}
}

// Build creates a device for every configured entry. Transports come from
// registry, macros run through runner
func Build(cfg *config.Config, registry *actuator.Registry, actx *actuator.Context, runner macro.Runner, clk clock.Clock, logger *zap.Logger) (*Manager, error) {
	m := NewManager(logger)

	for _, dc := range cfg.Devices {
		act, err := registry.Create(dc.Transport, actx)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", dc.Name, err)
		}

		tmpl, err := dc.Template()
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", dc.Name, err)
		}

		d := New(Options{
			Name:           dc.Name,
			DeviceType:     dc.DeviceType,
			Transport:      dc.Transport,
			Blaster:        dc.IRBlasterEntity,
			Table:          dc.Table(),
			Template:       tmpl,
			Actuator:       act,
			Runner:         runner,
			UpdateInterval: dc.Interval(),
			Clock:          clk,
			Logger:         logger,
		})
		if err := m.Add(d); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Add registers a device. Devices must be added before Start
func (m *Manager) Add(d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[d.Name()]; exists {
		return fmt.Errorf("%w: %s", config.ErrDuplicateDevice, d.Name())
	}
	m.devices[d.Name()] = d
	m.order = append(m.order, d.Name())
	m.tracker.Register(d.Name(), d.ShadowState)
	return nil
}

// Get returns the named device
func (m *Manager) Get(name string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[name]
	return d, ok
}

// Devices returns all devices in the order they were added
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Device, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.devices[name])
	}
	return out
}

// Tracker returns the shadow state tracker covering every device
func (m *Manager) Tracker() *shadowstate.Tracker {
	return m.tracker
}

// Subscribe registers l on every device
func (m *Manager) Subscribe(l Listener) {
	for _, d := range m.Devices() {
		d.AddListener(l)
	}
}

// Start schedules periodic refreshes and launches every device worker. If
// scheduling fails no worker is started and the manager can be started again
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("manager already started")
	}

	var scheduled []cron.EntryID
	for _, name := range m.order {
		d := m.devices[name]
		if d.Interval() <= 0 {
			continue
		}
		spec := fmt.Sprintf("@every %s", d.Interval())
		id, err := m.schedule(spec, func() { m.refresh(d) })
		if err != nil {
			for _, id := range scheduled {
				m.cron.Remove(id)
			}
			return fmt.Errorf("failed to schedule refresh for %s: %w", name, err)
		}
		scheduled = append(scheduled, id)
		m.logger.Debug("Scheduled refresh", zap.String("device", name), zap.Duration("interval", d.Interval()))
	}

	for _, name := range m.order {
		m.devices[name].Start()
	}

	m.cron.Start()
	m.started = true
	m.logger.Info("Devices started", zap.Int("count", len(m.order)))
	return nil
}

func (m *Manager) refresh(d *Device) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := d.Refresh(ctx); err != nil {
		m.logger.Warn("Failed to refresh device", zap.String("device", d.Name()), zap.Error(err))
	}
}

// Stop cancels scheduled refreshes and stops every device
func (m *Manager) Stop() {
	<-m.cron.Stop().Done()

	for _, d := range m.Devices() {
		d.Stop()
	}
	m.logger.Info("Devices stopped")
}
