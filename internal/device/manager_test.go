package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"irfan/internal/clock"
	"irfan/internal/config"
	"irfan/internal/dispatch"
	"irfan/internal/fan"
	"irfan/internal/ha"
	"irfan/internal/mqtt"
	"irfan/pkg/actuator"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const managerConfig = `devices:
  - name: Bedroom Fan
    ir_blaster_entity: remote.bedroom_blaster
    ir_codes:
      power_on: "ON"
      power_off: "OFF"
      speed_up: "UP"
      speed_down: "DOWN"
      oscillate_toggle: "OSC"
    actions:
      - name: Night mode
        ir_code: "NIGHT"
    blaster_action:
      - service: remote.send_command
        target:
          entity_id: remote.bedroom_blaster
        data:
          command: IR_CODE
  - name: Office Fan
    device_type: AM07
    transport: mqtt
    ir_blaster_entity: tasmota/office/cmnd/IRSend
    ir_codes:
      power_on: "P-ON"
      power_off: "P-OFF"
      speed_up: "S-UP"
      speed_down: "S-DOWN"
      oscillate_toggle: "OSC"
`

func buildTestManager(t *testing.T) (*Manager, *ha.MockClient, *mqtt.FakePublisher) {
	t.Helper()
	cfg, err := config.Parse([]byte(managerConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(zap.NewNop()))

	client := ha.NewMockClient()
	pub := mqtt.NewFakePublisher()
	logger := zap.NewNop()

	m, err := Build(cfg,
		actuator.NewDefaultRegistry(),
		actuator.NewContext(client, pub, logger, false),
		ha.NewServiceRunner(client, logger),
		clock.NewRealClock(),
		logger)
	require.NoError(t, err)
	return m, client, pub
}

func TestBuild_RoutesTransports(t *testing.T) {
	m, client, pub := buildTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	ctx := context.Background()
	bedroom, ok := m.Get("Bedroom Fan")
	require.True(t, ok)
	office, ok := m.Get("Office Fan")
	require.True(t, ok)

	require.NoError(t, bedroom.TurnOn(ctx, ""))
	require.NoError(t, office.TurnOn(ctx, ""))

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remote.bedroom_blaster", calls[0].Data["entity_id"])
	assert.Equal(t, []string{"ON"}, calls[0].Data["command"])

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tasmota/office/cmnd/IRSend", msgs[0].Topic)
	assert.Equal(t, "P-ON", string(msgs[0].Payload))
}

func TestBuild_MacroThroughServiceRunner(t *testing.T) {
	m, client, _ := buildTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	bedroom, _ := m.Get("Bedroom Fan")
	ran, err := bedroom.PressMacro(context.Background(), "Night mode")
	require.NoError(t, err)
	assert.True(t, ran)

	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "remote", calls[0].Domain)
	assert.Equal(t, "send_command", calls[0].Service)
	assert.Equal(t, "remote.bedroom_blaster", calls[0].Data["entity_id"])
	assert.Equal(t, []any{"NIGHT"}, calls[0].Data["command"])
}

func TestBuild_MissingConnection(t *testing.T) {
	cfg, err := config.Parse([]byte(managerConfig))
	require.NoError(t, err)

	_, err = Build(cfg,
		actuator.NewDefaultRegistry(),
		actuator.NewContext(ha.NewMockClient(), nil, zap.NewNop(), false),
		nil,
		clock.NewRealClock(),
		zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Office Fan")
}

func TestManager_OrderAndTracker(t *testing.T) {
	m, _, _ := buildTestManager(t)

	names := make([]string, 0)
	for _, d := range m.Devices() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"Bedroom Fan", "Office Fan"}, names)
	assert.Equal(t, []string{"Bedroom Fan", "Office Fan"}, m.Tracker().Names())

	state, ok := m.Tracker().Get("Office Fan")
	require.True(t, ok)
	assert.Equal(t, "AM07", state.Metadata.DeviceType)
}

func TestManager_AddDuplicate(t *testing.T) {
	m := NewManager(zap.NewNop())
	opts := Options{Name: "Fan", Table: fullTable(), Actuator: dispatch.NewRecorder(), Logger: zap.NewNop()}

	require.NoError(t, m.Add(New(opts)))
	err := m.Add(New(opts))
	assert.ErrorIs(t, err, config.ErrDuplicateDevice)
}

func TestManager_StartTwice(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Start())
	defer m.Stop()

	assert.Error(t, m.Start())
}

func TestManager_PeriodicRefresh(t *testing.T) {
	m := NewManager(zap.NewNop())
	d := New(Options{
		Name:           "Fan",
		Table:          fullTable(),
		Actuator:       dispatch.NewRecorder(),
		UpdateInterval: time.Second,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, m.Add(d))

	var mu sync.Mutex
	refreshes := 0
	m.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		refreshes++
	})

	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return refreshes >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManager_StatePublisherListener(t *testing.T) {
	m, _, _ := buildTestManager(t)
	statePub := mqtt.NewFakePublisher()
	publisher := mqtt.NewStatePublisher(statePub, "", zap.NewNop())
	m.Subscribe(func(s Snapshot) {
		_ = publisher.PublishState(s.Name, s.State)
	})

	require.NoError(t, m.Start())
	defer m.Stop()

	bedroom, _ := m.Get("Bedroom Fan")
	require.NoError(t, bedroom.TurnOn(context.Background(), fan.PresetHigh))

	msg, ok := statePub.Last("irfan/bedroom-fan/state")
	require.True(t, ok)
	assert.Contains(t, string(msg.Payload), `"preset_mode":"High"`)
}

func TestManager_StopRejectsIntents(t *testing.T) {
	m, _, _ := buildTestManager(t)
	require.NoError(t, m.Start())
	m.Stop()

	bedroom, _ := m.Get("Bedroom Fan")
	assert.ErrorIs(t, bedroom.TurnOff(context.Background()), ErrStopped)
}

func TestManager_StartScheduleFailureStartsNothing(t *testing.T) {
	m := NewManager(zap.NewNop())
	for _, name := range []string{"Bedroom Fan", "Office Fan"} {
		require.NoError(t, m.Add(New(Options{
			Name:           name,
			Table:          fullTable(),
			Actuator:       dispatch.NewRecorder(),
			UpdateInterval: time.Minute,
			Logger:         zap.NewNop(),
		})))
	}

	calls := 0
	m.schedule = func(spec string, cmd func()) (cron.EntryID, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("scheduler full")
		}
		return m.cron.AddFunc(spec, cmd)
	}

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Office Fan")
	assert.Empty(t, m.cron.Entries())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	bedroom, _ := m.Get("Bedroom Fan")
	assert.ErrorIs(t, bedroom.TurnOn(ctx, ""), context.DeadlineExceeded, "no worker is running")

	m.schedule = m.cron.AddFunc
	require.NoError(t, m.Start())
	defer m.Stop()
	assert.Len(t, m.cron.Entries(), 2)
	require.NoError(t, bedroom.TurnOn(context.Background(), ""))
}
