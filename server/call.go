package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// callMethod dispatches POST /{module}/{method}. The default shape is
// a stream: chunks arrive as the call produces them, interleaved with
// captured logs when requested. Remote flips to fire-and-forget; the
// response is a single chunk carrying the call key and the caller
// re-attaches later through /object or /run_object.
func (s *Server) callMethod(w http.ResponseWriter, r *http.Request) {
	op := startOp("call")
	module := chi.URLParam(r, "module")
	method := chi.URLParam(r, "method")

	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.key = msg.Key
	op.env = s.dispatcher.TargetEnv(msg, module)

	if err := s.authorizeInvoke(r, module, op.env); err != nil {
		s.fail(w, r, op, err)
		return
	}

	key, err := s.dispatcher.Invoke(r.Context(), module, method, msg)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.key = key

	if msg.Remote {
		data, err := wire.EncodePayload(key)
		if err != nil {
			s.fail(w, r, op, err)
			return
		}
		s.done(w, r, op, types.ResultResponse(key, data))
		return
	}

	logsDir := ""
	if env, ok := s.registry.EnvForKey(key); ok {
		logsDir = env.LogsDir()
	}
	enc, err := startStream(w)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	mux := runtime.NewMultiplexer(s.dispatcher, runtime.MuxConfig{
		Key:          key,
		PollInterval: s.cfg.PollInterval,
		StreamLogs:   msg.StreamLogs,
		LogsDir:      logsDir,
		Logger:       s.logger,
		Collector:    s.cfg.Collector,
	})
	s.recordOp(r.Context(), op, mux.Stream(r.Context(), enc.Write))
}

// callArgsRequest is the plain-JSON body of POST /call/{fn_name}.
type callArgsRequest struct {
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
	Env    string         `json:"env,omitempty"`
}

// callFn dispatches POST /call/{fn_name}: a blocking convenience call
// that takes args as JSON and returns the terminal chunk as JSON. The
// outcome is always delivered with a 200; failures ride in the chunk's
// error fields.
func (s *Server) callFn(w http.ResponseWriter, r *http.Request) {
	op := startOp("call_func")
	fn := chi.URLParam(r, "fn_name")

	var req callArgsRequest
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, op, fmt.Errorf("decode call body: %w", err))
		return
	}
	data, err := wire.EncodeArgs(req.Args, req.Kwargs)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	msg := &types.Message{Env: req.Env, Data: data}
	op.env = s.dispatcher.TargetEnv(msg, fn)
	if err := s.authorizeInvoke(r, fn, op.env); err != nil {
		s.fail(w, r, op, err)
		return
	}

	key, err := s.dispatcher.Invoke(r.Context(), fn, "call", msg)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.key = key

	h, ok := s.dispatcher.Handle(key)
	if !ok {
		s.fail(w, r, op, types.KeyNotFound("call_func", key))
		return
	}
	v, err := h.Wait(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.recordOp(r.Context(), op, err)
			return
		}
		s.recordOp(r.Context(), op, err)
		writeJSON(w, http.StatusOK, types.ExceptionResponse(key, err))
		return
	}
	data, err = wire.EncodePayload(v)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.done(w, r, op, types.ResultResponse(key, data))
}

// runPayload is the serialized body of POST /run: a named invocation
// whose result is read back from the store rather than streamed.
type runPayload struct {
	Module string         `msgpack:"module"`
	Method string         `msgpack:"method"`
	Args   []any          `msgpack:"args"`
	Kwargs map[string]any `msgpack:"kwargs"`
}

// runNamed dispatches POST /run: launch under the caller's key and
// answer with the run record so progress can be polled by key.
func (s *Server) runNamed(w http.ResponseWriter, r *http.Request) {
	op := startOp("run")
	msg, err := decodeMessage(r)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	if msg.Key == "" {
		s.fail(w, r, op, fmt.Errorf("run missing key"))
		return
	}
	op.key = msg.Key

	var p runPayload
	if err := wire.DecodePayloadInto(msg.Data, &p); err != nil {
		s.fail(w, r, op, err)
		return
	}
	if p.Module == "" {
		s.fail(w, r, op, fmt.Errorf("run missing module"))
		return
	}
	if p.Method == "" {
		p.Method = "call"
	}
	data, err := wire.EncodeArgs(p.Args, p.Kwargs)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}

	call := *msg
	call.Data = data
	call.Remote = true
	op.env = s.dispatcher.TargetEnv(&call, p.Module)
	if err := s.authorizeInvoke(r, p.Module, op.env); err != nil {
		s.fail(w, r, op, err)
		return
	}

	key, err := s.dispatcher.Invoke(r.Context(), p.Module, p.Method, &call)
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	op.key = key

	env, ok := s.registry.EnvForKey(key)
	if !ok {
		s.fail(w, r, op, types.KeyNotFound("run", key))
		return
	}
	op.env = env.Name()
	v, ok := env.Store().GetNow(types.RefKey(key))
	if !ok {
		s.fail(w, r, op, types.KeyNotFound("run", key))
		return
	}
	rec, ok := v.(types.RunRecord)
	if !ok {
		s.fail(w, r, op, types.KeyNotFound("run", key))
		return
	}
	s.done(w, r, op, rec)
}
