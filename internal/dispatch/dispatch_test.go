package dispatch

import (
	"context"
	"errors"
	"testing"

	"irfan/internal/codes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testTable() *codes.Table {
	return codes.NewTable(map[codes.Key]codes.ActionCode{
		codes.PowerOn:  "ON",
		codes.PowerOff: "OFF",
		codes.HeatOn:   "",
	}, nil)
}

func TestDispatcher_Send(t *testing.T) {
	rec := NewRecorder()
	rec.FailPayloads["OFF"] = errors.New("blaster unreachable")
	d := New(testTable(), rec, "remote.living_room", zap.NewNop())

	tests := []struct {
		name    string
		key     codes.Key
		outcome Outcome
	}{
		{name: "configured key is sent", key: codes.PowerOn, outcome: Sent},
		{name: "actuator error is a failure", key: codes.PowerOff, outcome: Failed},
		{name: "empty code is skipped", key: codes.HeatOn, outcome: Unconfigured},
		{name: "absent code is skipped", key: codes.SpeedUp, outcome: Unconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Send(context.Background(), tt.key)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.key, res.Key)
			if tt.outcome == Failed {
				assert.Error(t, res.Err)
			} else {
				assert.NoError(t, res.Err)
			}
		})
	}

	// Unconfigured keys never reach the actuator; failures still do.
	assert.Equal(t, []codes.ActionCode{"ON", "OFF"}, rec.Payloads())
	for _, c := range rec.Calls() {
		assert.Equal(t, "remote.living_room", c.Device)
	}
}

func TestDispatcher_SingleAttempt(t *testing.T) {
	rec := NewRecorder()
	rec.FailWith = errors.New("timeout")
	d := New(testTable(), rec, "remote.x", zap.NewNop())

	res := d.Fire(context.Background(), codes.PowerOn)
	assert.Equal(t, Failed, res.Outcome)
	assert.Len(t, rec.Payloads(), 1, "no retry on failure")
}

func TestAbsorb_LogLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	Absorb(logger, "remote.x", Result{Key: codes.PowerOn, Outcome: Sent})
	Absorb(logger, "remote.x", Result{Key: codes.HeatOn, Outcome: Unconfigured})
	Absorb(logger, "remote.x", Result{Key: codes.PowerOff, Outcome: Failed, Err: errors.New("boom")})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "heat_on", entries[1].ContextMap()["key"])
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestActuatorFunc(t *testing.T) {
	var got codes.ActionCode
	d := New(testTable(), ActuatorFunc(func(_ context.Context, _ string, p codes.ActionCode) error {
		got = p
		return nil
	}), "remote.x", zap.NewNop())

	assert.Equal(t, Sent, d.Send(context.Background(), codes.PowerOn).Outcome)
	assert.Equal(t, codes.ActionCode("ON"), got)
	assert.Equal(t, "failed", Failed.String())
}

func TestDispatcher_ActuatorPanicIsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := New(testTable(), ActuatorFunc(func(context.Context, string, codes.ActionCode) error {
		panic("driver crashed")
	}), "remote.x", zap.New(core))

	var res Result
	require.NotPanics(t, func() { res = d.Fire(context.Background(), codes.PowerOn) })
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, codes.PowerOn, res.Key)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "driver crashed")

	require.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
