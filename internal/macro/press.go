package macro

import (
	"context"

	"irfan/internal/codes"

	"go.uber.org/zap"
)

// Runner executes a populated action list, in order, under ctx. It is the
// external script runner; the macro package only produces its input.
type Runner interface {
	Run(ctx context.Context, name string, actions Value) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, actions Value) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, actions Value) error {
	return f(ctx, name, actions)
}

// Presser turns a macro name into an executed action list.
type Presser struct {
	table    *codes.Table
	template Value
	runner   Runner
	logger   *zap.Logger
}

// NewPresser creates a Presser. template may be nil when the device has no
// recorded action template; presses are then ignored.
func NewPresser(table *codes.Table, template Value, runner Runner, logger *zap.Logger) *Presser {
	return &Presser{
		table:    table,
		template: template,
		runner:   runner,
		logger:   logger.Named("macro"),
	}
}

// Press expands the template with the named macro's code and runs it. It
// returns the populated actions and whether they were handed to the runner.
// Unknown macros, a missing template and runner errors are logged, never
// returned.
func (p *Presser) Press(ctx context.Context, name string) (Value, bool) {
	m, ok := p.table.Macro(name)
	if !ok {
		p.logger.Warn("Unknown macro, ignoring", zap.String("macro", name))
		return nil, false
	}

	if p.template == nil || isEmpty(p.template) {
		p.logger.Warn("No blaster actions configured, ignoring macro", zap.String("macro", name))
		return nil, false
	}

	actions := Expand(p.template, m.Code)

	if err := p.runner.Run(ctx, m.Name, actions); err != nil {
		p.logger.Error("Failed to execute blaster actions",
			zap.String("macro", m.Name),
			zap.Error(err))
		return actions, true
	}

	p.logger.Debug("Executed blaster actions", zap.String("macro", m.Name))
	return actions, true
}

func isEmpty(v Value) bool {
	switch n := v.(type) {
	case Sequence:
		return len(n) == 0
	case Mapping:
		return len(n) == 0
	}
	return false
}
