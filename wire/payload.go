// Package wire implements the gateway wire protocol: msgpack payload
// encoding and newline-delimited JSON response streaming.
package wire

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodePayload serializes an opaque value for transport. The resulting
// bytes travel inside Message.Data and Response.Data envelopes.
func EncodePayload(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &StreamError{
			Kind: StreamErrorEncode,
			Msg:  "failed to encode payload",
			Err:  err,
		}
	}
	return data, nil
}

// DecodePayload deserializes an opaque payload into normalized Go
// values: integers widen to int64, floats to float64, and map keys to
// strings, so values compare identically regardless of how narrowly
// they were encoded.
func DecodePayload(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, &StreamError{
			Kind: StreamErrorDecode,
			Msg:  "failed to decode payload",
			Err:  err,
		}
	}
	return Normalize(v), nil
}

// DecodePayloadInto deserializes a payload into a typed destination.
func DecodePayloadInto(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &StreamError{
			Kind: StreamErrorDecode,
			Msg:  "failed to decode payload",
			Err:  err,
		}
	}
	return nil
}

// CallArgs carries positional and keyword arguments for an invocation.
type CallArgs struct {
	// Args are the positional arguments, in order.
	Args []any `msgpack:"args"`
	// Kwargs are the keyword arguments.
	Kwargs map[string]any `msgpack:"kwargs"`
}

// EncodeArgs serializes an argument bundle.
func EncodeArgs(args []any, kwargs map[string]any) ([]byte, error) {
	return EncodePayload(&CallArgs{Args: args, Kwargs: kwargs})
}

// DecodeArgs deserializes an argument bundle with normalized values.
// Empty data yields an empty bundle rather than an error.
func DecodeArgs(data []byte) (*CallArgs, error) {
	if len(data) == 0 {
		return &CallArgs{}, nil
	}
	var raw CallArgs
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, &StreamError{
			Kind: StreamErrorDecode,
			Msg:  "failed to decode call args",
			Err:  err,
		}
	}
	out := &CallArgs{}
	if raw.Args != nil {
		out.Args = Normalize(raw.Args).([]any)
	}
	if raw.Kwargs != nil {
		out.Kwargs = normalizeStringMap(raw.Kwargs)
	}
	return out, nil
}

// Normalize widens decoded values to canonical Go types. Msgpack
// decoding produces the narrowest integer width that fits the wire
// value, which breaks equality comparisons downstream.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return widenUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return widenUint(x)
	case float32:
		return float64(x)
	case []any:
		for i := range x {
			x[i] = Normalize(x[i])
		}
		return x
	case map[string]any:
		return normalizeStringMap(x)
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprintf("%v", k)] = Normalize(val)
		}
		return out
	default:
		return v
	}
}

func normalizeStringMap(m map[string]any) map[string]any {
	for k, val := range m {
		m[k] = Normalize(val)
	}
	return m
}

// widenUint converts to int64 when the value fits; values above
// MaxInt64 stay uint64 to avoid silent truncation.
func widenUint(u uint64) any {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}
