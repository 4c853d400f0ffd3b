package server

import (
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

func TestObject_PutGetRoundtrip(t *testing.T) {
	g := newTestGateway(t, nil)

	value := []any{int64(5), int64(7), int64(49), "a string"}
	resp := g.post(t, "/object", &types.Message{Key: "list1", Data: encodePayload(t, value)})
	var put objectResult
	decodeBody(t, resp, &put)
	if put.Key != "list1" || put.Env != runtime.DefaultEnvName {
		t.Errorf("put result = %+v", put)
	}

	chunks := readChunks(t, g.get(t, "/object?key=list1"))
	if len(chunks) != 1 || chunks[0].OutputType != types.OutputTypeResult {
		t.Fatalf("chunks = %+v, want a single result", chunks)
	}
	got := decodePayload(t, chunks[0].Data)
	if !reflect.DeepEqual(got, value) {
		t.Errorf("value = %#v, want %#v", got, value)
	}

	snap := g.collector.Snapshot()
	if snap.ObjectPuts != 1 || snap.ObjectGets != 1 {
		t.Errorf("puts = %d gets = %d, want 1 and 1", snap.ObjectPuts, snap.ObjectGets)
	}
}

func TestObject_GetStreamsStoredSequence(t *testing.T) {
	g := newTestGateway(t, nil)
	env, err := g.registry.Resolve("")
	if err != nil {
		t.Fatalf("resolve default env: %v", err)
	}
	env.Store().Put("seq", runtime.NewSliceSequence([]any{int64(1), int64(2), int64(3)}))

	chunks := readChunks(t, g.get(t, "/object?key=seq"))
	if len(chunks) != 4 {
		t.Fatalf("chunks = %d, want 3 partials and a terminal", len(chunks))
	}
	for i, want := range []int64{1, 2, 3} {
		if chunks[i].OutputType != types.OutputTypeResultStream {
			t.Errorf("chunk %d type = %q, want result_stream", i, chunks[i].OutputType)
		}
		if v := decodePayload(t, chunks[i].Data); v != want {
			t.Errorf("chunk %d = %v, want %d", i, v, want)
		}
	}
	last := chunks[3]
	if last.OutputType != types.OutputTypeResult {
		t.Fatalf("terminal type = %q, want result", last.OutputType)
	}
	if v := decodePayload(t, last.Data); !reflect.DeepEqual(v, []any{int64(1), int64(2), int64(3)}) {
		t.Errorf("terminal = %#v", v)
	}
}

func TestObject_GetServesModuleDescriptor(t *testing.T) {
	g := newTestGateway(t, nil)

	chunks := readChunks(t, g.get(t, "/object?key=summer"))
	if len(chunks) != 1 || chunks[0].OutputType != types.OutputTypeResult {
		t.Fatalf("chunks = %+v, want one result", chunks)
	}
	var cfg types.ResourceConfig
	decodePayloadInto(t, chunks[0].Data, &cfg)
	if cfg.Name != "summer" || cfg.Type != types.ResourceTypeModule {
		t.Errorf("descriptor = %+v", cfg)
	}
}

func TestObject_GetMissing(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.get(t, "/object?key=nope&wait=10ms")
	var body errorBody
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusNotFound || body.Code != "key_not_found" {
		t.Errorf("status = %d code = %q, want 404 key_not_found", resp.StatusCode, body.Code)
	}

	resp = g.get(t, "/object")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing key: status = %d, want 400", resp.StatusCode)
	}

	resp = g.get(t, "/object?key=nope&wait=bogus")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad wait: status = %d, want 400", resp.StatusCode)
	}
}

func TestObject_GetWaitsForValue(t *testing.T) {
	g := newTestGateway(t, nil)
	env, err := g.registry.Resolve("")
	if err != nil {
		t.Fatalf("resolve default env: %v", err)
	}
	timer := time.AfterFunc(50*time.Millisecond, func() {
		env.Store().Put("late", "worth the wait")
	})
	defer timer.Stop()

	chunks := readChunks(t, g.get(t, "/object?key=late&wait=2s"))
	if len(chunks) != 1 || chunks[0].OutputType != types.OutputTypeResult {
		t.Fatalf("chunks = %+v", chunks)
	}
	if v := decodePayload(t, chunks[0].Data); v != "worth the wait" {
		t.Errorf("value = %v", v)
	}
}

func TestObject_GetStreamLogsExhaustsInBand(t *testing.T) {
	g := newTestGateway(t, nil)

	// The stream commits before the value exists, so the miss arrives
	// as an exception chunk on a 200.
	chunks := readChunks(t, g.get(t, "/object?key=ghost&stream_logs=true&wait=80ms"))
	last := chunks[len(chunks)-1]
	if last.OutputType != types.OutputTypeException {
		t.Fatalf("terminal type = %q, want exception", last.OutputType)
	}
	if last.Error == "" {
		t.Error("exception chunk missing error")
	}
}

func TestObject_Rename(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.post(t, "/object", &types.Message{Key: "old", Data: encodePayload(t, int64(1))})
	resp.Body.Close()

	resp = g.request(t, http.MethodPut, "/object",
		&types.Message{Key: "old", Data: encodePayload(t, "new")}, "")
	var moved objectResult
	decodeBody(t, resp, &moved)
	if moved.Key != "new" {
		t.Errorf("rename result = %+v", moved)
	}

	chunks := readChunks(t, g.get(t, "/object?key=new"))
	if v := decodePayload(t, chunks[0].Data); v != int64(1) {
		t.Errorf("moved value = %v, want 1", v)
	}
	resp = g.get(t, "/object?key=old&wait=1ms")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("old key: status = %d, want 404", resp.StatusCode)
	}

	resp = g.request(t, http.MethodPut, "/object",
		&types.Message{Key: "gone", Data: encodePayload(t, "anywhere")}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("rename missing: status = %d, want 404", resp.StatusCode)
	}
}

func TestObject_DeleteIdempotent(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.post(t, "/object", &types.Message{Key: "victim", Data: encodePayload(t, int64(9))})
	resp.Body.Close()

	for range 2 {
		resp = g.request(t, http.MethodDelete, "/object", &types.Message{Key: "victim"}, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete: status = %d, want 200", resp.StatusCode)
		}
	}
	resp = g.get(t, "/object?key=victim&wait=1ms")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted key: status = %d, want 404", resp.StatusCode)
	}
}

func TestObject_Keys(t *testing.T) {
	g := newTestGateway(t, nil)
	resp := g.post(t, "/object", &types.Message{Key: "mine", Env: "workers", Data: encodePayload(t, int64(1))})
	resp.Body.Close()

	var scoped keysResult
	decodeBody(t, g.get(t, "/keys?env=workers"), &scoped)
	if got := scoped.Envs["workers"]; len(got) == 0 {
		t.Fatalf("scoped keys = %+v", scoped.Envs)
	}
	found := false
	for _, k := range scoped.Envs["workers"] {
		if k == "mine" {
			found = true
		}
	}
	if !found {
		t.Error("scoped listing missing the stored key")
	}

	var all keysResult
	decodeBody(t, g.get(t, "/keys"), &all)
	if _, ok := all.Envs[runtime.DefaultEnvName]; !ok {
		t.Error("unscoped listing missing the default env")
	}
	if _, ok := all.Envs["workers"]; !ok {
		t.Error("unscoped listing missing the workers env")
	}

	resp = g.get(t, "/keys?env=phantom")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown env: status = %d, want 404", resp.StatusCode)
	}
}

func TestRunObject_TracksRun(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.post(t, "/summer/call", &types.Message{
		Key:    "run-1",
		Remote: true,
		Data:   encodeKwargs(t, map[string]any{"a": 20, "b": 22}),
	})
	resp.Body.Close()

	var rec types.RunRecord
	decodeBody(t, g.get(t, "/run_object?key=run-1"), &rec)
	if rec.Key != "run-1" || rec.Module != "summer" || rec.Method != "call" {
		t.Fatalf("record = %+v", rec)
	}

	waitFor(t, 2*time.Second, func() bool {
		var rec types.RunRecord
		decodeBody(t, g.get(t, "/run_object?key=run-1"), &rec)
		return rec.Status == types.RunStatusDone
	}, "run never reached done")

	resp = g.get(t, "/run_object?key=never-ran&wait=1ms")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown run: status = %d, want 404", resp.StatusCode)
	}
}

func TestCancel_SingleAndAll(t *testing.T) {
	g := newTestGateway(t, nil)

	launch := func(key string) {
		resp := g.post(t, "/sleeper/call", &types.Message{
			Key:    key,
			Remote: true,
			Data:   encodeKwargs(t, map[string]any{"ms": 60000}),
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("launch %s: status = %d", key, resp.StatusCode)
		}
	}

	launch("naps-1")
	var one cancelResult
	decodeBody(t, g.post(t, "/cancel", &types.Message{Key: "naps-1"}), &one)
	if one.Cancelled != 1 || one.Key != "naps-1" {
		t.Errorf("cancel result = %+v", one)
	}
	waitFor(t, 2*time.Second, func() bool {
		var rec types.RunRecord
		decodeBody(t, g.get(t, "/run_object?key=naps-1"), &rec)
		return rec.Status == types.RunStatusCancelled
	}, "cancelled run never recorded")

	launch("naps-2")
	launch("naps-3")
	var all cancelResult
	decodeBody(t, g.post(t, "/cancel", &types.Message{Key: "all"}), &all)
	if all.Cancelled != 2 {
		t.Errorf("cancel all = %+v, want 2", all)
	}

	resp := g.post(t, "/cancel", &types.Message{Key: "unknown"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel unknown: status = %d, want 404", resp.StatusCode)
	}
	resp = g.post(t, "/cancel", &types.Message{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("cancel without key: status = %d, want 400", resp.StatusCode)
	}
}

func decodePayloadInto(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := wire.DecodePayloadInto(data, v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}
