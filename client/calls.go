package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// ResponseFunc receives one stream chunk. Returning an error stops
// consumption and surfaces the error to the caller.
type ResponseFunc func(types.Response) error

// CallOptions configures a module method invocation.
type CallOptions struct {
	// Key names the call. Empty lets the gateway generate one.
	Key string
	// Env pins the call to one environment. Empty lets the gateway
	// resolve placement.
	Env string
	// Args are positional arguments.
	Args []any
	// Kwargs are keyword arguments.
	Kwargs map[string]any
	// StreamLogs interleaves captured log output with call results.
	StreamLogs bool
	// Save persists the result server-side after completion.
	Save bool
	// Remote detaches the call: the gateway acks with the call key
	// instead of streaming output.
	Remote bool
}

// RunRequest names a detached invocation tracked by a run record.
type RunRequest struct {
	// Key names the run (required).
	Key string
	// Env pins the run to one environment.
	Env string
	// Module is the target module (required).
	Module string
	// Method is the target method. Empty means "call".
	Method string
	// Args are positional arguments.
	Args []any
	// Kwargs are keyword arguments.
	Kwargs map[string]any
	// Save persists the result after completion.
	Save bool
}

// runPayload is the serialized body of POST /run.
type runPayload struct {
	Module string         `msgpack:"module"`
	Method string         `msgpack:"method"`
	Args   []any          `msgpack:"args"`
	Kwargs map[string]any `msgpack:"kwargs"`
}

// Call invokes method on module and forwards every response chunk to
// fn until the stream drains. It returns the call key. A remote
// failure reported in the stream becomes *RemoteError after all
// chunks, including any trailing log output, have been delivered.
//
// With opts.Remote set the gateway acknowledges immediately and the
// single acknowledgement chunk is forwarded instead.
func (c *Client) Call(ctx context.Context, module, method string, opts CallOptions, fn ResponseFunc) (string, error) {
	if module == "" {
		return "", errors.New("missing module")
	}
	if method == "" {
		return "", errors.New("missing method")
	}
	data, err := wire.EncodeArgs(opts.Args, opts.Kwargs)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	msg := types.Message{
		Key:        opts.Key,
		Env:        opts.Env,
		Data:       data,
		StreamLogs: opts.StreamLogs,
		Save:       opts.Save,
		Remote:     opts.Remote,
	}

	path := "/" + url.PathEscape(module) + "/" + url.PathEscape(method)
	resp, err := c.stream(ctx, http.MethodPost, path, nil, msg)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if !strings.Contains(resp.Header.Get("Content-Type"), wire.ContentTypeNDJSON) {
		return consumeAck(resp.Body, fn)
	}
	return consumeCall(resp.Body, fn)
}

// CallFunc invokes the callable stored under fn with a blocking
// request/response exchange. Remote failures become *RemoteError.
func (c *Client) CallFunc(ctx context.Context, fn string, args []any, kwargs map[string]any, env string) (any, error) {
	if fn == "" {
		return nil, errors.New("missing function name")
	}
	body := struct {
		Args   []any          `json:"args,omitempty"`
		Kwargs map[string]any `json:"kwargs,omitempty"`
		Env    string         `json:"env,omitempty"`
	}{Args: args, Kwargs: kwargs, Env: env}

	var chunk types.Response
	path := "/call/" + url.PathEscape(fn)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &chunk); err != nil {
		return nil, err
	}
	if chunk.OutputType == types.OutputTypeException {
		return nil, &RemoteError{Key: chunk.Key, Message: chunk.Error, Traceback: chunk.Traceback}
	}
	v, err := wire.DecodePayload(chunk.Data)
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}

// Run launches a named detached invocation and returns its run
// record. Progress is observable through RunObject and the result
// through Get once the run completes.
func (c *Client) Run(ctx context.Context, req RunRequest) (types.RunRecord, error) {
	if req.Key == "" {
		return types.RunRecord{}, errors.New("missing run key")
	}
	if req.Module == "" {
		return types.RunRecord{}, errors.New("missing module")
	}
	data, err := wire.EncodePayload(runPayload{
		Module: req.Module,
		Method: req.Method,
		Args:   req.Args,
		Kwargs: req.Kwargs,
	})
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("encode run payload: %w", err)
	}
	msg := types.Message{Key: req.Key, Env: req.Env, Data: data, Save: req.Save}

	var rec types.RunRecord
	if err := c.doJSON(ctx, http.MethodPost, "/run", nil, msg, &rec); err != nil {
		return types.RunRecord{}, err
	}
	return rec, nil
}

// Cancel requests termination of the call under key.
func (c *Client) Cancel(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("missing call key")
	}
	msg := types.Message{Key: key}
	return c.doJSON(ctx, http.MethodPost, "/cancel", nil, msg, nil)
}

// CancelAll requests termination of every active call and reports how
// many were signalled.
func (c *Client) CancelAll(ctx context.Context) (int, error) {
	msg := types.Message{Key: "all"}
	var out struct {
		Cancelled int `json:"cancelled"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/cancel", nil, msg, &out); err != nil {
		return 0, err
	}
	return out.Cancelled, nil
}

// consumeCall drains a call stream, forwarding chunks and tracking
// the key and terminal outcome.
func consumeCall(r io.Reader, fn ResponseFunc) (string, error) {
	dec := wire.NewStreamDecoder(r)
	var (
		key       string
		remoteErr *RemoteError
	)
	for {
		chunk, err := dec.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return key, err
		}
		if key == "" {
			key = chunk.Key
		}
		if fn != nil {
			if err := fn(chunk); err != nil {
				return key, err
			}
		}
		if chunk.OutputType == types.OutputTypeException {
			remoteErr = &RemoteError{
				Key:       chunk.Key,
				Message:   chunk.Error,
				Traceback: chunk.Traceback,
			}
		}
	}
	if remoteErr != nil {
		return key, remoteErr
	}
	return key, nil
}

// consumeAck decodes the unary acknowledgement of a detached call.
func consumeAck(r io.Reader, fn ResponseFunc) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read acknowledgement: %w", err)
	}
	var chunk types.Response
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", fmt.Errorf("decode acknowledgement: %w", err)
	}
	if fn != nil {
		if err := fn(chunk); err != nil {
			return chunk.Key, err
		}
	}
	return chunk.Key, nil
}
