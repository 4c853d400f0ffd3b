package types

// OutputType is the type discriminant for response chunks.
type OutputType string

const (
	// OutputTypeResult is a terminal success value.
	OutputTypeResult OutputType = "result"
	// OutputTypeResultStream is a non-terminal partial value; more
	// chunks follow.
	OutputTypeResultStream OutputType = "result_stream"
	// OutputTypeStdout is a batch of captured log lines.
	OutputTypeStdout OutputType = "stdout"
	// OutputTypeException is a terminal failure.
	OutputTypeException OutputType = "exception"
)

// IsTerminal returns true if this output type ends a response stream.
func (t OutputType) IsTerminal() bool {
	return t == OutputTypeResult || t == OutputTypeException
}

// Response is the reply envelope for a gateway call. A call produces a
// stream of these: zero or more non-terminal chunks followed by exactly
// one terminal chunk. Unary routes collapse the stream to the terminal
// chunk alone.
type Response struct {
	// Key echoes the call key the chunk belongs to.
	Key string `json:"key,omitempty"`
	// Data is the serialized payload. Present on result and
	// result_stream chunks; holds the line batch on stdout chunks.
	Data []byte `json:"data,omitempty"`
	// Error is the failure message. Present only on exception chunks.
	Error string `json:"error,omitempty"`
	// Traceback is the failure detail accompanying Error, when the
	// callable produced one.
	Traceback string `json:"traceback,omitempty"`
	// OutputType discriminates the chunk.
	OutputType OutputType `json:"output_type"`
}

// ResultResponse builds a terminal success chunk.
func ResultResponse(key string, data []byte) Response {
	return Response{Key: key, Data: data, OutputType: OutputTypeResult}
}

// StreamResponse builds a non-terminal partial value chunk.
func StreamResponse(key string, data []byte) Response {
	return Response{Key: key, Data: data, OutputType: OutputTypeResultStream}
}

// StdoutResponse builds a log batch chunk.
func StdoutResponse(key string, data []byte) Response {
	return Response{Key: key, Data: data, OutputType: OutputTypeStdout}
}

// ExceptionResponse builds a terminal failure chunk from err. The
// traceback is included when err carries one.
func ExceptionResponse(key string, err error) Response {
	resp := Response{Key: key, OutputType: OutputTypeException}
	if err == nil {
		return resp
	}
	resp.Error = err.Error()
	var e *Error
	if AsError(err, &e) && e.Traceback != "" {
		resp.Traceback = e.Traceback
	}
	return resp
}
