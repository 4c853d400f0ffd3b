package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/justapithecus/adit/auth"
	"github.com/justapithecus/adit/logtail"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

type objectResult struct {
	Key string `json:"key"`
	Env string `json:"env"`
}

type keysResult struct {
	Envs map[string][]string `json:"envs"`
}

type cancelResult struct {
	Key       string `json:"key,omitempty"`
	Cancelled int    `json:"cancelled"`
}

// resolveEnv finds the environment for an object operation without
// creating one: the explicit name, else the key's owner, else the
// default.
func (s *Server) resolveEnv(explicit, key string) (*runtime.Environment, error) {
	if explicit != "" {
		return s.registry.Resolve(explicit)
	}
	if key != "" {
		if env, ok := s.registry.EnvForKey(key); ok {
			return env, nil
		}
	}
	return s.registry.Resolve("")
}

// parseWait reads the wait query parameter as a Go duration, falling
// back to the server default when absent.
func (s *Server) parseWait(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("wait")
	if raw == "" {
		return s.cfg.GetWait, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid wait %q: %w", raw, err)
	}
	return wait, nil
}

// getObject streams the value stored at a key, waiting up to the
// requested bound for it to appear. With stream_logs the wait is
// spent in poll slices so captured log batches flow while the caller
// blocks. Stored sequences are re-streamed chunk by chunk.
func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	op := startOp("get")
	key := r.URL.Query().Get("key")
	if key == "" {
		s.fail(w, r, op, fmt.Errorf("get missing key"))
		return
	}
	op.key = key

	if err := s.authorize(r, key, auth.LevelRead); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.resolveEnv(r.URL.Query().Get("env"), key)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()

	wait, err := s.parseWait(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	streamLogs, _ := strconv.ParseBool(r.URL.Query().Get("stream_logs"))

	if !streamLogs {
		v, err := env.Store().Get(r.Context(), key, wait)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.cfg.Collector.IncObjectGet()
		enc, err := startStream(w)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.recordOp(r.Context(), op, s.emitValue(r.Context(), enc, key, v))
		return
	}

	enc, err := startStream(w)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.recordOp(r.Context(), op, s.streamObject(r.Context(), enc, env, key, wait))
}

// streamObject waits for key in poll slices, flushing the call's log
// files between polls. After the stream is committed every failure
// travels in-band as an exception chunk.
func (s *Server) streamObject(ctx context.Context, enc *wire.StreamEncoder, env *runtime.Environment, key string, wait time.Duration) error {
	var tailer *logtail.Tailer
	if t, err := logtail.New(logtail.Config{Dir: env.LogsDir(), Key: key}); err != nil {
		s.logger.Warn("log tailing disabled", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	} else {
		tailer = t
		defer tailer.Close()
	}

	deadline := time.Now().Add(wait)
	for {
		poll := min(s.cfg.PollInterval, time.Until(deadline))
		v, err := env.Store().Get(ctx, key, poll)
		if err == nil {
			s.flushLogs(enc, tailer, key)
			s.cfg.Collector.IncObjectGet()
			return s.emitValue(ctx, enc, key, v)
		}
		if !errors.Is(err, types.ErrKeyNotFound) {
			return enc.Write(types.ExceptionResponse(key, err))
		}
		s.flushLogs(enc, tailer, key)
		if time.Now().After(deadline) {
			return enc.Write(types.ExceptionResponse(key, types.KeyNotFound("get", key)))
		}
	}
}

// flushLogs emits any newly captured log lines as one stdout batch.
func (s *Server) flushLogs(enc *wire.StreamEncoder, tailer *logtail.Tailer, key string) {
	if tailer == nil {
		return
	}
	lines, err := tailer.ReadNew()
	if err != nil {
		s.logger.Warn("log read failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if len(lines) == 0 {
		return
	}
	data, err := wire.EncodePayload(lines)
	if err != nil {
		return
	}
	_ = enc.Write(types.StdoutResponse(key, data))
}

// emitValue writes the value as response chunks: sequences stream
// element by element and finish with the collected result, modules
// serve their resource descriptor, everything else is one result
// chunk.
func (s *Server) emitValue(ctx context.Context, enc *wire.StreamEncoder, key string, v any) error {
	switch val := v.(type) {
	case runtime.Sequence:
		var collected []any
		for {
			item, ok, err := val.Next(ctx)
			if err != nil {
				return enc.Write(types.ExceptionResponse(key, err))
			}
			if !ok {
				break
			}
			data, err := wire.EncodePayload(item)
			if err != nil {
				return enc.Write(types.ExceptionResponse(key, err))
			}
			if err := enc.Write(types.StreamResponse(key, data)); err != nil {
				return err
			}
			collected = append(collected, item)
		}
		return s.emitTerminal(enc, key, collected)
	case *runtime.Module:
		return s.emitTerminal(enc, key, val.Describe())
	default:
		return s.emitTerminal(enc, key, v)
	}
}

func (s *Server) emitTerminal(enc *wire.StreamEncoder, key string, v any) error {
	data, err := wire.EncodePayload(v)
	if err != nil {
		return enc.Write(types.ExceptionResponse(key, err))
	}
	return enc.Write(types.ResultResponse(key, data))
}

// putObject stores the message payload under its key, creating the
// environment on demand. Save mirrors the raw payload to disk.
func (s *Server) putObject(w http.ResponseWriter, r *http.Request) {
	op := startOp("put")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if msg.Key == "" {
		s.fail(w, r, op, fmt.Errorf("put missing key"))
		return
	}
	op.key = msg.Key
	op.env = msg.Env

	if err := s.authorize(r, msg.Key, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.registry.GetOrCreate(msg.Env)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()

	v, err := wire.DecodePayload(msg.Data)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	env.Store().Put(msg.Key, v)
	s.cfg.Collector.IncObjectPut()
	if msg.Save {
		s.persist(env.Name(), msg.Key, msg.Data)
	}
	s.done(w, r, op, objectResult{Key: msg.Key, Env: env.Name()})
}

// persist mirrors serialized data to the disk store. The in-memory
// store stays authoritative, so failures only warn.
func (s *Server) persist(env, key string, data []byte) {
	if s.cfg.Disk == nil {
		return
	}
	if err := s.cfg.Disk.Save(env, key, data); err != nil {
		s.logger.Warn("disk save failed", map[string]any{
			"env":   env,
			"key":   key,
			"error": err.Error(),
		})
	}
}

// renameObject moves a value to a new key. The payload is the new key
// as a serialized string.
func (s *Server) renameObject(w http.ResponseWriter, r *http.Request) {
	op := startOp("rename")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if msg.Key == "" {
		s.fail(w, r, op, fmt.Errorf("rename missing key"))
		return
	}
	op.key = msg.Key

	var newKey string
	if err := wire.DecodePayloadInto(msg.Data, &newKey); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if newKey == "" {
		s.fail(w, r, op, fmt.Errorf("rename missing new key"))
		return
	}

	if err := s.authorize(r, msg.Key, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.resolveEnv(msg.Env, msg.Key)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()

	if err := env.Store().Rename(msg.Key, newKey); err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.cfg.Collector.IncObjectRename()
	if s.cfg.Disk != nil {
		if err := s.cfg.Disk.Rename(env.Name(), msg.Key, newKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("disk rename failed", map[string]any{
				"env":   env.Name(),
				"key":   msg.Key,
				"error": err.Error(),
			})
		}
	}
	s.done(w, r, op, objectResult{Key: newKey, Env: env.Name()})
}

// deleteObject removes a key. Absence is not an error, so deletes are
// safe to retry.
func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	op := startOp("delete")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	key := msg.Key
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	if key == "" {
		s.fail(w, r, op, fmt.Errorf("delete missing key"))
		return
	}
	op.key = key

	if err := s.authorize(r, key, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.resolveEnv(msg.Env, key)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()

	env.Store().Delete(key)
	s.cfg.Collector.IncObjectDelete()
	if s.cfg.Disk != nil {
		if err := s.cfg.Disk.Remove(env.Name(), key); err != nil {
			s.logger.Warn("disk remove failed", map[string]any{
				"env":   env.Name(),
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	s.done(w, r, op, objectResult{Key: key, Env: env.Name()})
}

// keys lists stored keys, either for one environment or for all of
// them.
func (s *Server) keys(w http.ResponseWriter, r *http.Request) {
	op := startOp("keys")
	envName := r.URL.Query().Get("env")

	resource := serverResource
	if envName != "" {
		resource = envName
	}
	op.env = envName
	if err := s.authorize(r, resource, auth.LevelRead); err != nil {
		s.fail(w, r, op, err)
		return
	}

	out := keysResult{Envs: make(map[string][]string)}
	if envName != "" {
		env, err := s.registry.Resolve(envName)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		out.Envs[env.Name()] = env.Store().Keys()
	} else {
		for _, name := range s.registry.Names() {
			env, err := s.registry.Resolve(name)
			if err != nil {
				continue
			}
			out.Envs[name] = env.Store().Keys()
		}
	}
	s.done(w, r, op, out)
}

// getRunObject returns the run record for a call key.
func (s *Server) getRunObject(w http.ResponseWriter, r *http.Request) {
	op := startOp("run_object")
	key := r.URL.Query().Get("key")
	if key == "" {
		s.fail(w, r, op, fmt.Errorf("run_object missing key"))
		return
	}
	op.key = key

	if err := s.authorize(r, key, auth.LevelRead); err != nil {
		s.fail(w, r, op, err)
		return
	}
	env, err := s.resolveEnv(r.URL.Query().Get("env"), key)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.env = env.Name()

	wait, err := s.parseWait(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	v, err := env.Store().Get(r.Context(), types.RefKey(key), wait)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	rec, ok := v.(types.RunRecord)
	if !ok {
		s.fail(w, r, op, types.KeyNotFound("run_object", key))
		return
	}
	s.cfg.Collector.IncObjectGet()
	s.done(w, r, op, rec)
}

// cancel terminates one call, or every active call when the key is
// "all".
func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	op := startOp("cancel")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if msg.Key == "" {
		s.fail(w, r, op, fmt.Errorf("cancel missing key"))
		return
	}
	op.key = msg.Key

	if msg.Key == "all" {
		if err := s.authorize(r, serverResource, auth.LevelWrite); err != nil {
			s.fail(w, r, op, err)
			return
		}
		n := s.dispatcher.CancelAll()
		s.done(w, r, op, cancelResult{Cancelled: n})
		return
	}

	if err := s.authorize(r, msg.Key, auth.LevelWrite); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if err := s.dispatcher.Cancel(msg.Key); err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.done(w, r, op, cancelResult{Key: msg.Key, Cancelled: 1})
}
