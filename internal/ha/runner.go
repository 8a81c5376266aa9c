package ha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"irfan/internal/macro"

	"go.uber.org/zap"
)

// ServiceRunner executes populated macro actions as a Home Assistant script
// would. Each step is a mapping with either a "service" (or "action") key of
// the form "domain.service" plus optional "data" and "target" mappings, or a
// "delay" key holding seconds. Steps run in order and the first failure
// aborts the rest
type ServiceRunner struct {
	client ServiceCaller
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewServiceRunner creates a runner that calls services through client
func NewServiceRunner(client ServiceCaller, logger *zap.Logger) *ServiceRunner {
	return &ServiceRunner{
		client: client,
		logger: logger.Named("runner"),
		sleep:  sleepContext,
	}
}

// Run executes actions for the macro called name
func (r *ServiceRunner) Run(ctx context.Context, name string, actions macro.Value) error {
	var steps macro.Sequence
	switch v := actions.(type) {
	case macro.Sequence:
		steps = v
	case macro.Mapping:
		steps = macro.Sequence{v}
	default:
		return fmt.Errorf("macro %q: actions must be a list of steps", name)
	}

	for i, step := range steps {
		m, ok := step.(macro.Mapping)
		if !ok {
			return fmt.Errorf("macro %q step %d: expected a mapping", name, i)
		}
		if err := r.runStep(ctx, m); err != nil {
			return fmt.Errorf("macro %q step %d: %w", name, i, err)
		}
	}

	r.logger.Debug("Ran macro actions", zap.String("macro", name), zap.Int("steps", len(steps)))
	return nil
}

func (r *ServiceRunner) runStep(ctx context.Context, step macro.Mapping) error {
	if v, ok := step.Get("delay"); ok {
		d, err := delayOf(v)
		if err != nil {
			return err
		}
		return r.sleep(ctx, d)
	}

	svc, ok := step.Get("service")
	if !ok {
		svc, ok = step.Get("action")
	}
	if !ok {
		return fmt.Errorf("step has no service, action or delay")
	}

	scalar, ok := svc.(macro.Scalar)
	if !ok {
		return fmt.Errorf("service must be a string")
	}
	full, ok := scalar.String()
	if !ok {
		return fmt.Errorf("service must be a string")
	}
	domain, service, ok := strings.Cut(full, ".")
	if !ok || domain == "" || service == "" {
		return fmt.Errorf("invalid service %q, expected domain.service", full)
	}

	data := make(map[string]interface{})
	for _, key := range []string{"target", "data"} {
		v, ok := step.Get(key)
		if !ok {
			continue
		}
		fields, ok := macro.Any(v).(map[string]any)
		if !ok {
			return fmt.Errorf("%s must be a mapping", key)
		}
		for k, field := range fields {
			data[k] = field
		}
	}

	return r.client.CallService(ctx, domain, service, data)
}

func delayOf(v macro.Value) (time.Duration, error) {
	s, ok := v.(macro.Scalar)
	if !ok {
		return 0, fmt.Errorf("delay must be a number of seconds")
	}
	switch n := s.V.(type) {
	case int64:
		return time.Duration(n) * time.Second, nil
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("delay must be a number of seconds")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
