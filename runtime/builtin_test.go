package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func callBuiltin(t *testing.T, mod *Module, method string, out io.Writer, kwargs map[string]any) (any, error) {
	t.Helper()
	c, ok := mod.Method(method)
	if !ok {
		t.Fatalf("method %s.%s not registered", mod.Name(), method)
	}
	if out == nil {
		out = io.Discard
	}
	return c.Call(t.Context(), out, nil, kwargs)
}

func TestSummer(t *testing.T) {
	mod := summerModule()

	v, err := callBuiltin(t, mod, "call", nil, map[string]any{"a": 5, "b": 8})
	if err != nil {
		t.Fatalf("summer failed: %v", err)
	}
	if v != int64(13) {
		t.Errorf("sum = %v (%T), want 13", v, v)
	}

	v, err = callBuiltin(t, mod, "call", nil, map[string]any{"a": int64(2), "b": 0.5})
	if err != nil {
		t.Fatalf("summer with float failed: %v", err)
	}
	if v != 2.5 {
		t.Errorf("sum = %v, want 2.5", v)
	}

	if _, err := callBuiltin(t, mod, "call", nil, map[string]any{"a": "nope"}); err == nil {
		t.Error("non-numeric operand accepted")
	}
}

func TestEcho(t *testing.T) {
	mod := echoModule()
	c, _ := mod.Method("call")

	v, err := c.Call(t.Context(), io.Discard, []any{"first", "second"}, nil)
	if err != nil {
		t.Fatalf("echo failed: %v", err)
	}
	if v != "first" {
		t.Errorf("echo = %v, want first positional arg", v)
	}

	v, err = callBuiltin(t, mod, "call", nil, map[string]any{"value": int64(7)})
	if err != nil {
		t.Fatalf("echo kwarg failed: %v", err)
	}
	if v != int64(7) {
		t.Errorf("echo = %v, want 7", v)
	}

	v, err = callBuiltin(t, mod, "call", nil, nil)
	if err != nil {
		t.Fatalf("echo empty failed: %v", err)
	}
	if v != nil {
		t.Errorf("echo = %v, want nil for no input", v)
	}
}

func TestSequencer(t *testing.T) {
	mod := sequencerModule()

	v, err := callBuiltin(t, mod, "count", nil, map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	seq, ok := v.(Sequence)
	if !ok {
		t.Fatalf("count returned %T, want a sequence", v)
	}
	for want := int64(0); want < 3; want++ {
		item, ok, err := seq.Next(t.Context())
		if err != nil || !ok {
			t.Fatalf("Next = %v %v %v, want element", item, ok, err)
		}
		if item != want {
			t.Errorf("element = %v, want %d", item, want)
		}
	}
	if _, ok, _ := seq.Next(t.Context()); ok {
		t.Error("sequence yielded past its end")
	}

	if _, err := callBuiltin(t, mod, "items", nil, map[string]any{"items": "oops"}); err == nil {
		t.Error("non-list items accepted")
	}
	v, err = callBuiltin(t, mod, "items", nil, map[string]any{"items": []any{"x", "y"}})
	if err != nil {
		t.Fatalf("items failed: %v", err)
	}
	item, ok, err := v.(Sequence).Next(t.Context())
	if err != nil || !ok || item != "x" {
		t.Errorf("first item = %v %v %v, want x", item, ok, err)
	}
}

func TestSleeper(t *testing.T) {
	mod := sleeperModule()

	v, err := callBuiltin(t, mod, "call", nil, map[string]any{"ms": 5})
	if err != nil {
		t.Fatalf("sleeper failed: %v", err)
	}
	if v != int64(5) {
		t.Errorf("sleeper = %v, want the requested ms", v)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	c, _ := mod.Method("call")
	if _, err := c.Call(ctx, io.Discard, nil, map[string]any{"ms": 60000}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled sleeper = %v, want context.Canceled", err)
	}
}

func TestPrinter(t *testing.T) {
	mod := printerModule()

	var buf bytes.Buffer
	v, err := callBuiltin(t, mod, "call", &buf, map[string]any{
		"lines": []any{"one", "two"},
	})
	if err != nil {
		t.Fatalf("printer failed: %v", err)
	}
	if v != int64(2) {
		t.Errorf("count = %v, want 2", v)
	}
	if got := buf.String(); got != "one\ntwo\n" {
		t.Errorf("output = %q, want one and two on their own lines", got)
	}

	if _, err := callBuiltin(t, mod, "call", nil, map[string]any{"lines": 3}); err == nil {
		t.Error("non-list lines accepted")
	}
}

func TestIntKwarg(t *testing.T) {
	tests := []struct {
		name    string
		kwargs  map[string]any
		want    int64
		wantErr string
	}{
		{name: "int", kwargs: map[string]any{"n": 4}, want: 4},
		{name: "int64", kwargs: map[string]any{"n": int64(9)}, want: 9},
		{name: "float", kwargs: map[string]any{"n": 2.0}, want: 2},
		{name: "missing", kwargs: map[string]any{}, wantErr: "missing"},
		{name: "string", kwargs: map[string]any{"n": "4"}, wantErr: "must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intKwarg(tt.kwargs, "n")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("intKwarg failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
