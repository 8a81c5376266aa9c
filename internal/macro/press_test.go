package macro

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

type recordingRunner struct {
	names   []string
	actions []Value
	err     error
}

func (r *recordingRunner) Run(_ context.Context, name string, actions Value) error {
	r.names = append(r.names, name)
	r.actions = append(r.actions, actions)
	return r.err
}

func macroTable() *codes.Table {
	return codes.NewTable(nil, []codes.Macro{
		{Name: "Power On", Code: "code_on"},
		{Name: "Power Off", Code: "code_off"},
	})
}

func TestPresser_Press(t *testing.T) {
	runner := &recordingRunner{}
	template := sendCommandTemplate()
	p := NewPresser(macroTable(), template, runner, zap.NewNop())

	actions, ran := p.Press(context.Background(), "Power On")
	require.True(t, ran)
	assert.Equal(t, []string{"Power On"}, runner.names)

	want := []any{map[string]any{
		"service": "remote.send_command",
		"data": map[string]any{
			"device_id": "blaster_device_id",
			"command":   []any{"code_on"},
		},
	}}
	assert.Equal(t, want, Any(actions))

	// Pressing a second macro reuses the untouched template.
	_, ran = p.Press(context.Background(), "Power Off")
	require.True(t, ran)
	assert.True(t, HasSentinel(template))
	first := Any(runner.actions[0]).([]any)[0].(map[string]any)["data"].(map[string]any)["command"]
	assert.Equal(t, []any{"code_on"}, first)
}

func TestPresser_Ignored(t *testing.T) {
	tests := []struct {
		name     string
		template Value
		macro    string
		logMsg   string
	}{
		{name: "unknown macro", template: sendCommandTemplate(), macro: "Turbo", logMsg: "Unknown macro, ignoring"},
		{name: "no template", template: nil, macro: "Power On", logMsg: "No blaster actions configured, ignoring macro"},
		{name: "empty template", template: Sequence{}, macro: "Power On", logMsg: "No blaster actions configured, ignoring macro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			runner := &recordingRunner{}
			p := NewPresser(macroTable(), tt.template, runner, zap.New(core))

			actions, ran := p.Press(context.Background(), tt.macro)
			assert.False(t, ran)
			assert.Nil(t, actions)
			assert.Empty(t, runner.names)
			require.Equal(t, 1, logs.FilterMessage(tt.logMsg).Len())
		})
	}
}

func TestPresser_RunnerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	runner := &recordingRunner{err: errors.New("script failed")}
	p := NewPresser(macroTable(), sendCommandTemplate(), runner, zap.New(core))

	_, ran := p.Press(context.Background(), "Power On")
	assert.True(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("Failed to execute blaster actions").Len())
}
