package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"irfan/internal/clock"
	"irfan/internal/codes"
	"irfan/internal/dispatch"
	"irfan/internal/fan"
	"irfan/internal/macro"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testStart = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func fullTable() *codes.Table {
	return codes.NewTable(map[codes.Key]codes.ActionCode{
		codes.PowerOn:         "ON",
		codes.PowerOff:        "OFF",
		codes.SpeedUp:         "UP",
		codes.SpeedDown:       "DOWN",
		codes.OscillateToggle: "OSC",
		codes.HeatOn:          "HEATON",
		codes.HeatOff:         "HEATOFF",
	}, []codes.Macro{{Name: "Night mode", Code: "NIGHT"}})
}

type recordingRunner struct {
	mu    sync.Mutex
	names []string
	acts  []macro.Value
}

func (r *recordingRunner) Run(ctx context.Context, name string, actions macro.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.acts = append(r.acts, actions)
	return nil
}

func newTestDevice(t *testing.T, rec *dispatch.Recorder, runner macro.Runner) (*Device, *clock.MockClock) {
	t.Helper()
	tmpl, err := macro.FromAny([]any{map[string]any{
		"service": "remote.send_command",
		"data":    map[string]any{"command": "IR_CODE"},
	}})
	require.NoError(t, err)

	clk := clock.NewMockClock(testStart)
	d := New(Options{
		Name:       "Bedroom Fan",
		DeviceType: "AM09",
		Transport:  "ha",
		Blaster:    "remote.bedroom",
		Table:      fullTable(),
		Template:   tmpl,
		Actuator:   rec,
		Runner:     runner,
		Clock:      clk,
		Logger:     zap.NewNop(),
	})
	d.Start()
	t.Cleanup(d.Stop)
	return d, clk
}

func TestDevice_InitialSnapshot(t *testing.T) {
	d, _ := newTestDevice(t, dispatch.NewRecorder(), &recordingRunner{})

	snap := d.Snapshot()
	assert.Equal(t, "Bedroom Fan", snap.Name)
	assert.False(t, snap.IsOn)
	assert.Equal(t, 0, snap.Percentage)
	assert.Equal(t, fan.PresetOff, snap.PresetMode)
	assert.Equal(t, fan.Presets, snap.PresetModes)
	assert.Equal(t, []string{"Night mode"}, snap.Macros)
	assert.Equal(t, testStart, snap.UpdatedAt)
}

func TestDevice_TurnOnWithPreset(t *testing.T) {
	rec := dispatch.NewRecorder()
	d, clk := newTestDevice(t, rec, &recordingRunner{})
	ctx := context.Background()

	clk.Advance(time.Second)
	require.NoError(t, d.TurnOn(ctx, fan.PresetMedium))

	assert.Equal(t, []codes.ActionCode{"ON", "UP", "UP"}, rec.Payloads())
	assert.True(t, d.IsOn())
	assert.Equal(t, 66, d.Percentage())
	assert.Equal(t, fan.PresetMedium, d.PresetMode())
	assert.Equal(t, testStart.Add(time.Second), d.Snapshot().UpdatedAt)

	for _, call := range rec.Calls() {
		assert.Equal(t, "remote.bedroom", call.Device)
	}
}

func TestDevice_ReadAfterWrite(t *testing.T) {
	rec := dispatch.NewRecorder()
	d, _ := newTestDevice(t, rec, &recordingRunner{})
	ctx := context.Background()

	require.NoError(t, d.SetPercentage(ctx, 100))
	assert.Equal(t, 100, d.Percentage())

	require.NoError(t, d.SetPercentage(ctx, 40))
	assert.Equal(t, 66, d.Percentage())

	require.NoError(t, d.SetOscillating(ctx, true))
	assert.True(t, d.Snapshot().State.Oscillating)

	require.NoError(t, d.SetHeat(ctx, true))
	assert.True(t, d.Snapshot().State.Heat)

	require.NoError(t, d.TurnOff(ctx))
	snap := d.Snapshot()
	assert.False(t, snap.IsOn)
	assert.Equal(t, fan.PresetOff, snap.PresetMode)
	assert.True(t, snap.State.Oscillating, "turn-off keeps oscillation")
	assert.True(t, snap.State.Heat, "turn-off keeps heat")

	assert.Equal(t, []codes.ActionCode{
		"ON", "UP", "UP", "UP",
		"DOWN",
		"OSC",
		"HEATON",
		"OFF",
	}, rec.Payloads())
}

func TestDevice_PresetModeUnknownIgnored(t *testing.T) {
	rec := dispatch.NewRecorder()
	d, _ := newTestDevice(t, rec, &recordingRunner{})

	require.NoError(t, d.SetPresetMode(context.Background(), "Turbo"))
	assert.Empty(t, rec.Payloads())
	assert.Nil(t, d.ShadowState().LastAction)
}

func TestDevice_DispatchFailureStillCommits(t *testing.T) {
	rec := dispatch.NewRecorder()
	rec.FailWith = errors.New("blaster offline")
	d, _ := newTestDevice(t, rec, &recordingRunner{})

	require.NoError(t, d.SetPercentage(context.Background(), 33))
	assert.True(t, d.IsOn())
	assert.Equal(t, 33, d.Percentage())

	shadow := d.ShadowState()
	require.NotNil(t, shadow.LastAction)
	assert.Equal(t, 2, shadow.LastAction.Failures)
}

func TestDevice_PressMacro(t *testing.T) {
	runner := &recordingRunner{}
	d, _ := newTestDevice(t, dispatch.NewRecorder(), runner)
	ctx := context.Background()

	ran, err := d.PressMacro(ctx, "Night mode")
	require.NoError(t, err)
	assert.True(t, ran)

	require.Len(t, runner.acts, 1)
	assert.Equal(t, []any{map[string]any{
		"service": "remote.send_command",
		"data":    map[string]any{"command": []any{"NIGHT"}},
	}}, macro.Any(runner.acts[0]))

	ran, err = d.PressMacro(ctx, "Unknown")
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Len(t, runner.names, 1)

	shadow := d.ShadowState()
	require.Len(t, shadow.History, 2)
	assert.Equal(t, "macro", shadow.LastAction.ActionType)
	assert.Equal(t, false, shadow.LastAction.Details["executed"])
}

func TestDevice_ShadowStateRecordsIntent(t *testing.T) {
	d, _ := newTestDevice(t, dispatch.NewRecorder(), &recordingRunner{})

	require.NoError(t, d.TurnOn(context.Background(), fan.PresetHigh))

	shadow := d.ShadowState()
	require.Len(t, shadow.History, 2)
	assert.Equal(t, "turn_on", shadow.History[0].ActionType)
	assert.Equal(t, "set_preset_mode", shadow.History[1].ActionType)
	assert.Equal(t, "turn_on", shadow.History[1].Reason)
	assert.Equal(t, 100, shadow.Outputs.Percentage)
}

func TestDevice_Listeners(t *testing.T) {
	rec := dispatch.NewRecorder()
	clk := clock.NewMockClock(testStart)
	d := New(Options{
		Name:     "Office",
		Table:    fullTable(),
		Actuator: rec,
		Runner:   &recordingRunner{},
		Clock:    clk,
		Logger:   zap.NewNop(),
	})

	var mu sync.Mutex
	var got []Snapshot
	d.AddListener(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})
	d.Start()
	defer d.Stop()

	ctx := context.Background()
	require.NoError(t, d.TurnOn(ctx, fan.PresetLow))
	require.NoError(t, d.Refresh(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3, "turn_on, set_preset_mode, refresh")
	assert.Equal(t, 33, got[1].Percentage)
	assert.Equal(t, got[1].State, got[2].State)
}

func TestDevice_SerializesConcurrentIntents(t *testing.T) {
	rec := dispatch.NewRecorder()
	d, _ := newTestDevice(t, rec, &recordingRunner{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			on := i%2 == 0
			assert.NoError(t, d.SetOscillating(ctx, on))
		}(i)
	}
	wg.Wait()

	assert.Len(t, rec.Payloads(), 20)
	assert.Len(t, d.ShadowState().History, 20)
}

func TestDevice_StoppedRejectsIntents(t *testing.T) {
	d, _ := newTestDevice(t, dispatch.NewRecorder(), &recordingRunner{})
	d.Stop()

	err := d.TurnOn(context.Background(), "")
	assert.ErrorIs(t, err, ErrStopped)

	_, err = d.PressMacro(context.Background(), "Night mode")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDevice_SubmitHonorsContext(t *testing.T) {
	rec := dispatch.NewRecorder()
	d := New(Options{
		Name:     "Idle",
		Table:    fullTable(),
		Actuator: rec,
		Logger:   zap.NewNop(),
	})
	// Not started: nothing receives the intent

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.TurnOn(ctx, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, rec.Payloads())
}

func TestDevice_StartedIntentRunsToCompletion(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var sent []codes.ActionCode
	slow := dispatch.ActuatorFunc(func(ctx context.Context, device string, payload codes.ActionCode) error {
		<-release
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, payload)
		return ctx.Err()
	})

	d := New(Options{
		Name:     "Slow",
		Table:    fullTable(),
		Actuator: slow,
		Logger:   zap.NewNop(),
	})
	d.Start()
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.SetPercentage(ctx, 100) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return d.Percentage() == 100 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []codes.ActionCode{"ON", "UP", "UP", "UP"}, sent)
	assert.Equal(t, 0, d.ShadowState().LastAction.Failures, "intent context is not canceled mid-transition")
}

func TestDevice_PressMacroContextEndsFirst(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	slow := macro.RunnerFunc(func(ctx context.Context, name string, actions macro.Value) error {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	d, _ := newTestDevice(t, dispatch.NewRecorder(), slow)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran, err := d.PressMacro(ctx, "Night mode")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	<-started
	require.Eventually(t, func() bool {
		last := d.ShadowState().LastAction
		return last != nil && last.ActionType == "macro" && last.Details["executed"] == true
	}, time.Second, 5*time.Millisecond)

	ran, err = d.PressMacro(context.Background(), "Night mode")
	require.NoError(t, err)
	assert.True(t, ran)
}
