package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/adit/client"
	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/server"
	"github.com/justapithecus/adit/store"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

type gatewayFixture struct {
	cli     *client.Client
	dataDir string
}

// newGateway stands up a real gateway over the builtin modules and
// returns a client pointed at it.
func newGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	logger := log.NewLogger("test", "error")
	collector := metrics.NewCollector("memory", runtime.DefaultEnvName)
	registry := runtime.NewRegistry(runtime.RegistryConfig{
		LogsRoot:  t.TempDir(),
		Seed:      runtime.Builtins(),
		Logger:    logger,
		Collector: collector,
	})
	dispatcher := runtime.NewDispatcher(registry, runtime.DispatcherConfig{
		GetWait:   50 * time.Millisecond,
		Logger:    logger,
		Collector: collector,
	})
	if _, err := registry.GetOrCreate(""); err != nil {
		t.Fatalf("create default env: %v", err)
	}

	dataDir := t.TempDir()
	srv, err := server.New(server.Config{
		DataDir:      dataDir,
		PollInterval: 20 * time.Millisecond,
		GetWait:      200 * time.Millisecond,
		Dispatcher:   dispatcher,
		Collector:    collector,
		Disk:         store.NewDisk(filepath.Join(dataDir, "objects")),
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	cli, err := client.New(ts.URL)
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return &gatewayFixture{cli: cli, dataDir: dataDir}
}

// waitForRun polls the run record until the predicate holds.
func waitForRun(t *testing.T, cli *client.Client, key string, pred func(types.RunRecord) bool) types.RunRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := cli.RunObject(t.Context(), key, 50*time.Millisecond)
		if err == nil && pred(rec) {
			return rec
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %q never reached expected state (last: %+v, err: %v)", key, rec, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := client.New(""); !errors.Is(err, client.ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
	if _, err := client.New("   "); !errors.Is(err, client.ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL for blank URL, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	g := newGateway(t)

	report, err := g.cli.Check(t.Context())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if report.Status != "ok" {
		t.Errorf("status = %q, want ok", report.Status)
	}
	if report.Version != types.Version {
		t.Errorf("version = %q, want %q", report.Version, types.Version)
	}
	if report.DefaultEnv != runtime.DefaultEnvName {
		t.Errorf("default env = %q, want %q", report.DefaultEnv, runtime.DefaultEnvName)
	}
	if report.ConfigSaved {
		t.Error("plain check should not report a saved config")
	}
	if report.Metrics.StorageBackend != "memory" {
		t.Errorf("metrics backend = %q, want memory", report.Metrics.StorageBackend)
	}
}

func TestSaveClusterConfig(t *testing.T) {
	g := newGateway(t)

	report, err := g.cli.SaveClusterConfig(t.Context(), []byte("name: prod\nworkers: 4\n"))
	if err != nil {
		t.Fatalf("SaveClusterConfig failed: %v", err)
	}
	if !report.ConfigSaved {
		t.Error("report did not acknowledge the saved config")
	}
	data, err := os.ReadFile(filepath.Join(g.dataDir, "cluster_config.yaml"))
	if err != nil {
		t.Fatalf("read persisted config: %v", err)
	}
	if string(data) != "name: prod\nworkers: 4\n" {
		t.Errorf("persisted config = %q", data)
	}

	if _, err := g.cli.SaveClusterConfig(t.Context(), nil); err == nil {
		t.Error("empty document should be rejected client-side")
	}

	_, err = g.cli.SaveClusterConfig(t.Context(), []byte("{invalid"))
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for invalid YAML, got %v", err)
	}
	if apiErr.Status != 400 || apiErr.Code != "bad_request" {
		t.Errorf("got status %d code %q, want 400 bad_request", apiErr.Status, apiErr.Code)
	}
}

func TestObjectRoundTrip(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	if err := g.cli.Put(ctx, "", "answer", 42); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := g.cli.Get(ctx, "answer", client.GetOptions{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != int64(42) {
		t.Errorf("Get = %v (%T), want int64 42", v, v)
	}

	if err := g.cli.Rename(ctx, "", "answer", "solution"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := g.cli.Get(ctx, "answer", client.GetOptions{Wait: 30 * time.Millisecond}); !errors.Is(err, types.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for renamed-away key, got %v", err)
	}
	v, err = g.cli.Get(ctx, "solution", client.GetOptions{})
	if err != nil {
		t.Fatalf("Get after rename failed: %v", err)
	}
	if v != int64(42) {
		t.Errorf("Get after rename = %v, want 42", v)
	}

	if err := g.cli.Delete(ctx, "", "solution"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err = g.cli.Get(ctx, "solution", client.GetOptions{Wait: 30 * time.Millisecond})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError after delete, got %v", err)
	}
	if apiErr.Status != 404 || apiErr.Code != "key_not_found" {
		t.Errorf("got status %d code %q, want 404 key_not_found", apiErr.Status, apiErr.Code)
	}
}

func TestGet_OnResponse(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	if err := g.cli.Put(ctx, "", "greeting", "hello"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	var seen []types.Response
	v, err := g.cli.Get(ctx, "greeting", client.GetOptions{
		OnResponse: func(resp types.Response) error {
			seen = append(seen, resp)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "hello" {
		t.Errorf("Get = %v, want hello", v)
	}
	if len(seen) == 0 {
		t.Fatal("callback saw no chunks")
	}
	last := seen[len(seen)-1]
	if last.OutputType != types.OutputTypeResult {
		t.Errorf("last chunk type = %q, want result", last.OutputType)
	}
	if last.Key != "greeting" {
		t.Errorf("chunk key = %q, want greeting", last.Key)
	}
}

func TestKeys(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	if err := g.cli.Put(ctx, "", "alpha", 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := g.cli.Put(ctx, "scratch", "beta", 2); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	envs, err := g.cli.Keys(ctx, "")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !contains(envs[runtime.DefaultEnvName], "alpha") {
		t.Errorf("default env keys = %v, want alpha present", envs[runtime.DefaultEnvName])
	}
	if !contains(envs["scratch"], "beta") {
		t.Errorf("scratch keys = %v, want beta present", envs["scratch"])
	}

	scoped, err := g.cli.Keys(ctx, "scratch")
	if err != nil {
		t.Fatalf("scoped Keys failed: %v", err)
	}
	if len(scoped) != 1 || !contains(scoped["scratch"], "beta") {
		t.Errorf("scoped keys = %v, want only scratch/beta", scoped)
	}
}

func TestCall_Streaming(t *testing.T) {
	g := newGateway(t)

	var chunks []types.Response
	key, err := g.cli.Call(t.Context(), "summer", "call", client.CallOptions{
		Key:    "sum-1",
		Kwargs: map[string]any{"a": 5, "b": 8},
	}, func(resp types.Response) error {
		chunks = append(chunks, resp)
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if key != "sum-1" {
		t.Errorf("key = %q, want sum-1", key)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks streamed")
	}
	last := chunks[len(chunks)-1]
	if last.OutputType != types.OutputTypeResult {
		t.Fatalf("last chunk type = %q, want result", last.OutputType)
	}
	v, err := decodeChunk(t, last)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if v != int64(13) {
		t.Errorf("result = %v, want 13", v)
	}
}

func TestCall_ResultStream(t *testing.T) {
	g := newGateway(t)

	var streamed []any
	_, err := g.cli.Call(t.Context(), "sequencer", "count", client.CallOptions{
		Kwargs: map[string]any{"n": 3},
	}, func(resp types.Response) error {
		if resp.OutputType != types.OutputTypeResultStream {
			return nil
		}
		v, err := decodeChunk(t, resp)
		if err != nil {
			return err
		}
		streamed = append(streamed, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(streamed) != 3 {
		t.Fatalf("streamed %d partials, want 3: %v", len(streamed), streamed)
	}
	for i, v := range streamed {
		if v != int64(i) {
			t.Errorf("partial[%d] = %v, want %d", i, v, i)
		}
	}
}

func TestCall_RemoteError(t *testing.T) {
	g := newGateway(t)

	_, err := g.cli.Call(t.Context(), "sequencer", "items", client.CallOptions{
		Kwargs: map[string]any{"items": "not a list"},
	}, nil)
	var remoteErr *client.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Message == "" {
		t.Error("remote error carried no message")
	}
}

func TestCall_Detached(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	key, err := g.cli.Call(ctx, "echo", "call", client.CallOptions{
		Key:    "bg-echo",
		Args:   []any{"payload"},
		Remote: true,
	}, nil)
	if err != nil {
		t.Fatalf("detached Call failed: %v", err)
	}
	if key != "bg-echo" {
		t.Errorf("ack key = %q, want bg-echo", key)
	}

	v, err := g.cli.Get(ctx, key, client.GetOptions{Wait: 2 * time.Second})
	if err != nil {
		t.Fatalf("Get on detached result failed: %v", err)
	}
	if v != "payload" {
		t.Errorf("detached result = %v, want payload", v)
	}
}

func TestCall_UnknownModule(t *testing.T) {
	g := newGateway(t)

	_, err := g.cli.Call(t.Context(), "ghost", "call", client.CallOptions{}, nil)
	if !errors.Is(err, types.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for unknown module, got %v", err)
	}
}

func TestCallFunc(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	// Args ride as JSON, so numbers arrive as floats.
	v, err := g.cli.CallFunc(ctx, "echo", nil, map[string]any{"value": 7}, "")
	if err != nil {
		t.Fatalf("CallFunc failed: %v", err)
	}
	if v != float64(7) {
		t.Errorf("CallFunc = %v (%T), want 7", v, v)
	}

	_, err = g.cli.CallFunc(ctx, "summer", []any{"not a number"}, nil, "")
	var remoteErr *client.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError for bad arg, got %v", err)
	}

	_, err = g.cli.CallFunc(ctx, "ghost", nil, nil, "")
	if !errors.Is(err, types.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound for unknown fn, got %v", err)
	}
}

func TestRunAndRunObject(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	rec, err := g.cli.Run(ctx, client.RunRequest{
		Key:    "nightly-sum",
		Module: "summer",
		Kwargs: map[string]any{"a": 20, "b": 22},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec.Key != "nightly-sum" || rec.Module != "summer" || rec.Method != "call" {
		t.Errorf("run record = %+v", rec)
	}

	final := waitForRun(t, g.cli, "nightly-sum", func(r types.RunRecord) bool {
		return r.Status == types.RunStatusDone
	})
	if final.Error != "" {
		t.Errorf("run ended with error %q", final.Error)
	}
	if final.EndedAt.IsZero() {
		t.Error("completed run has zero EndedAt")
	}

	v, err := g.cli.Get(ctx, "nightly-sum", client.GetOptions{Wait: 2 * time.Second})
	if err != nil {
		t.Fatalf("Get on run result failed: %v", err)
	}
	if v != int64(42) {
		t.Errorf("run result = %v, want 42", v)
	}
}

func TestRun_Validation(t *testing.T) {
	g := newGateway(t)

	if _, err := g.cli.Run(t.Context(), client.RunRequest{Module: "summer"}); err == nil {
		t.Error("Run without key should fail client-side")
	}
	if _, err := g.cli.Run(t.Context(), client.RunRequest{Key: "k"}); err == nil {
		t.Error("Run without module should fail client-side")
	}
}

func TestCancel(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	key, err := g.cli.Call(ctx, "sleeper", "call", client.CallOptions{
		Key:    "long-sleep",
		Kwargs: map[string]any{"ms": 60000},
		Remote: true,
	}, nil)
	if err != nil {
		t.Fatalf("detached sleeper failed: %v", err)
	}

	if err := g.cli.Cancel(ctx, key); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	waitForRun(t, g.cli, key, func(r types.RunRecord) bool {
		return r.Status == types.RunStatusCancelled
	})
}

func TestCancelAll(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	for _, key := range []string{"sleep-a", "sleep-b"} {
		if _, err := g.cli.Call(ctx, "sleeper", "call", client.CallOptions{
			Key:    key,
			Kwargs: map[string]any{"ms": 60000},
			Remote: true,
		}, nil); err != nil {
			t.Fatalf("detached sleeper %s failed: %v", key, err)
		}
	}

	n, err := g.cli.CancelAll(ctx)
	if err != nil {
		t.Fatalf("CancelAll failed: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled %d calls, want 2", n)
	}
}

func TestCreateEnv(t *testing.T) {
	g := newGateway(t)

	res, err := g.cli.CreateEnv(t.Context(), types.EnvOptions{
		Name:     "burst",
		Packages: []string{"requests", "numpy"},
	})
	if err != nil {
		t.Fatalf("CreateEnv failed: %v", err)
	}
	if res.Env != "burst" {
		t.Errorf("env = %q, want burst", res.Env)
	}
	if len(res.Packages) != 2 {
		t.Fatalf("package acks = %+v, want 2", res.Packages)
	}
	for _, ack := range res.Packages {
		if ack.Status != "recorded" {
			t.Errorf("package %s status = %q, want recorded", ack.Package, ack.Status)
		}
	}
}

func TestPutResource(t *testing.T) {
	g := newGateway(t)

	res, err := g.cli.PutResource(t.Context(), "", types.ResourceConfig{
		Name:   "model-weights",
		Type:   types.ResourceTypeBlob,
		Config: map[string]any{"path": "/tmp/weights.bin"},
	})
	if err != nil {
		t.Fatalf("PutResource failed: %v", err)
	}
	if res.Name != "model-weights" || res.Type != types.ResourceTypeBlob {
		t.Errorf("resource result = %+v", res)
	}
	if res.Env != runtime.DefaultEnvName {
		t.Errorf("resource env = %q, want default", res.Env)
	}
}

func TestAddSecrets(t *testing.T) {
	g := newGateway(t)
	ctx := t.Context()

	outcomes, err := g.cli.AddSecrets(ctx, "", []types.SecretRecord{
		{Provider: "aws", Values: map[string]string{"key": "AKIA", "secret": "shh"}},
		{Provider: "", Values: map[string]string{"x": "y"}},
	})
	if err != nil {
		t.Fatalf("AddSecrets failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v, want 2", outcomes)
	}
	if outcomes[0].Status != "ok" || outcomes[0].Provider != "aws" {
		t.Errorf("aws outcome = %+v", outcomes[0])
	}
	if outcomes[1].Status != "error" {
		t.Errorf("invalid record outcome = %+v, want error", outcomes[1])
	}

	envs, err := g.cli.Keys(ctx, "")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !contains(envs[runtime.DefaultEnvName], types.SecretKey("aws")) {
		t.Errorf("keys = %v, want %s present", envs[runtime.DefaultEnvName], types.SecretKey("aws"))
	}

	if _, err := g.cli.AddSecrets(ctx, "", nil); err == nil {
		t.Error("empty batch should be rejected client-side")
	}
}

// decodeChunk unwraps one chunk's payload.
func decodeChunk(t *testing.T, resp types.Response) (any, error) {
	t.Helper()
	return wire.DecodePayload(resp.Data)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
