package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// GetOptions configures an object fetch.
type GetOptions struct {
	// Env scopes the lookup to one environment. Empty resolves by key
	// ownership, then the default environment.
	Env string
	// Wait bounds how long the gateway blocks for a missing key to
	// appear. Zero uses the gateway default.
	Wait time.Duration
	// StreamLogs asks for captured log output interleaved with the
	// value.
	StreamLogs bool
	// OnResponse observes every stream chunk before the final value is
	// decoded. Nil skips observation.
	OnResponse ResponseFunc
}

// Put stores a value under key in the named environment. Empty env
// targets the gateway default.
func (c *Client) Put(ctx context.Context, env, key string, value any) error {
	data, err := wire.EncodePayload(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	msg := types.Message{Key: key, Env: env, Data: data}
	return c.doJSON(ctx, http.MethodPost, "/object", nil, msg, nil)
}

// Get fetches the value stored under key. Stream chunks are decoded
// until the terminal arrives; an in-band failure becomes *RemoteError.
func (c *Client) Get(ctx context.Context, key string, opts GetOptions) (any, error) {
	query := url.Values{}
	query.Set("key", key)
	if opts.Env != "" {
		query.Set("env", opts.Env)
	}
	if opts.Wait > 0 {
		query.Set("wait", opts.Wait.String())
	}
	if opts.StreamLogs {
		query.Set("stream_logs", "true")
	}

	resp, err := c.stream(ctx, http.MethodGet, "/object", query, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return consumeValue(resp.Body, opts.OnResponse)
}

// Rename moves the value under oldKey to newKey within one
// environment.
func (c *Client) Rename(ctx context.Context, env, oldKey, newKey string) error {
	data, err := wire.EncodePayload(newKey)
	if err != nil {
		return fmt.Errorf("encode new key: %w", err)
	}
	msg := types.Message{Key: oldKey, Env: env, Data: data}
	return c.doJSON(ctx, http.MethodPut, "/object", nil, msg, nil)
}

// Delete removes the value under key. Deleting an absent key
// succeeds.
func (c *Client) Delete(ctx context.Context, env, key string) error {
	msg := types.Message{Key: key, Env: env}
	return c.doJSON(ctx, http.MethodDelete, "/object", nil, msg, nil)
}

// Keys lists stored keys per environment. Empty env covers every
// environment.
func (c *Client) Keys(ctx context.Context, env string) (map[string][]string, error) {
	query := url.Values{}
	if env != "" {
		query.Set("env", env)
	}
	var out struct {
		Envs map[string][]string `json:"envs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/keys", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Envs, nil
}

// RunObject fetches the run record tracking the call under key,
// waiting up to wait for it to appear.
func (c *Client) RunObject(ctx context.Context, key string, wait time.Duration) (types.RunRecord, error) {
	query := url.Values{}
	query.Set("key", key)
	if wait > 0 {
		query.Set("wait", wait.String())
	}
	var rec types.RunRecord
	if err := c.doJSON(ctx, http.MethodGet, "/run_object", query, nil, &rec); err != nil {
		return types.RunRecord{}, err
	}
	return rec, nil
}

// consumeValue drains a value stream, forwarding chunks to fn and
// returning the decoded terminal result.
func consumeValue(r io.Reader, fn ResponseFunc) (any, error) {
	dec := wire.NewStreamDecoder(r)
	var (
		result    any
		terminal  bool
		remoteErr *RemoteError
	)
	for {
		chunk, err := dec.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if fn != nil {
			if err := fn(chunk); err != nil {
				return nil, err
			}
		}
		switch chunk.OutputType {
		case types.OutputTypeResult:
			v, err := wire.DecodePayload(chunk.Data)
			if err != nil {
				return nil, fmt.Errorf("decode result: %w", err)
			}
			result = v
			terminal = true
		case types.OutputTypeException:
			remoteErr = &RemoteError{
				Key:       chunk.Key,
				Message:   chunk.Error,
				Traceback: chunk.Traceback,
			}
			terminal = true
		}
	}
	if remoteErr != nil {
		return nil, remoteErr
	}
	if !terminal {
		return nil, errors.New("stream ended without terminal chunk")
	}
	return result, nil
}
