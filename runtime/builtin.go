package runtime

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Builtins returns the callable library seeded into every environment.
// These are the gateway's smoke-test surface: a fresh deployment can
// be exercised end to end with nothing registered beyond them.
func Builtins() []*Module {
	return []*Module{
		summerModule(),
		echoModule(),
		sequencerModule(),
		sleeperModule(),
		printerModule(),
	}
}

// summerModule adds numbers: summer.call(a=5, b=8) returns 13.
// Positional args and kwarg values are summed together; mixing in a
// float makes the result a float.
func summerModule() *Module {
	mod := NewModule("summer")
	mod.RegisterFunc("call", func(_ context.Context, _ io.Writer, args []any, kwargs map[string]any) (any, error) {
		var intSum int64
		var floatSum float64
		isFloat := false
		add := func(v any) error {
			switch n := v.(type) {
			case int:
				intSum += int64(n)
				floatSum += float64(n)
			case int64:
				intSum += n
				floatSum += float64(n)
			case float64:
				isFloat = true
				floatSum += n
			default:
				return fmt.Errorf("summer: cannot add %T", v)
			}
			return nil
		}
		for _, v := range args {
			if err := add(v); err != nil {
				return nil, err
			}
		}
		for _, v := range kwargs {
			if err := add(v); err != nil {
				return nil, err
			}
		}
		if isFloat {
			return floatSum, nil
		}
		return intSum, nil
	})
	return mod
}

// echoModule returns its input unchanged: the first positional arg, or
// the "value" kwarg.
func echoModule() *Module {
	mod := NewModule("echo")
	mod.RegisterFunc("call", func(_ context.Context, _ io.Writer, args []any, kwargs map[string]any) (any, error) {
		if len(args) > 0 {
			return args[0], nil
		}
		if v, ok := kwargs["value"]; ok {
			return v, nil
		}
		return nil, nil
	})
	return mod
}

// sequencerModule produces result streams. count(n=5) streams the
// integers 0..4; items(items=[...]) streams the given elements back.
func sequencerModule() *Module {
	mod := NewModule("sequencer")
	mod.RegisterFunc("count", func(_ context.Context, _ io.Writer, _ []any, kwargs map[string]any) (any, error) {
		n, err := intKwarg(kwargs, "n")
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			items = append(items, i)
		}
		return NewSliceSequence(items), nil
	})
	mod.RegisterFunc("items", func(_ context.Context, _ io.Writer, _ []any, kwargs map[string]any) (any, error) {
		items, ok := kwargs["items"].([]any)
		if !ok {
			return nil, fmt.Errorf("sequencer: items kwarg must be a list, got %T", kwargs["items"])
		}
		return NewSliceSequence(items), nil
	})
	return mod
}

// sleeperModule blocks for the requested duration, honoring
// cancellation: sleeper.call(ms=500).
func sleeperModule() *Module {
	mod := NewModule("sleeper")
	mod.RegisterFunc("call", func(ctx context.Context, _ io.Writer, _ []any, kwargs map[string]any) (any, error) {
		ms, err := intKwarg(kwargs, "ms")
		if err != nil {
			return nil, err
		}
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			return ms, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return mod
}

// printerModule writes each line to the call's log and returns the
// line count: printer.call(lines=["a", "b"]).
func printerModule() *Module {
	mod := NewModule("printer")
	mod.RegisterFunc("call", func(_ context.Context, out io.Writer, _ []any, kwargs map[string]any) (any, error) {
		lines, ok := kwargs["lines"].([]any)
		if !ok {
			return nil, fmt.Errorf("printer: lines kwarg must be a list, got %T", kwargs["lines"])
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return nil, fmt.Errorf("printer: write line: %w", err)
			}
		}
		return int64(len(lines)), nil
	})
	return mod
}

// intKwarg reads an integer keyword argument, widening the numeric
// types the wire codec produces.
func intKwarg(kwargs map[string]any, name string) (int64, error) {
	v, ok := kwargs[name]
	if !ok {
		return 0, fmt.Errorf("missing %q kwarg", name)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("kwarg %q must be an integer, got %T", name, v)
	}
}
