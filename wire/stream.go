package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/adit/types"
)

// ContentTypeNDJSON is the content type for chunked response streams.
const ContentTypeNDJSON = "application/x-ndjson"

// Stream size constants.
const (
	// MaxLineSize is the maximum encoded size of one response chunk
	// (16 MiB), newline included.
	MaxLineSize = 16 * 1024 * 1024
	// initialLineBuffer is the starting scanner buffer size.
	initialLineBuffer = 64 * 1024
)

// StreamErrorKind classifies stream codec errors.
type StreamErrorKind int

const (
	// StreamErrorPartial indicates a truncated stream (reader died
	// before a terminal chunk).
	StreamErrorPartial StreamErrorKind = iota
	// StreamErrorTooLarge indicates a chunk exceeding MaxLineSize.
	StreamErrorTooLarge
	// StreamErrorDecode indicates a malformed chunk.
	StreamErrorDecode
	// StreamErrorEncode indicates a value that could not be serialized.
	StreamErrorEncode
)

// StreamError represents a stream codec error.
type StreamError struct {
	Kind StreamErrorKind
	Msg  string
	Err  error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue past this error.
// Truncation and oversized chunks are fatal; a single malformed chunk
// is not.
func (e *StreamError) IsFatal() bool {
	return e.Kind == StreamErrorPartial || e.Kind == StreamErrorTooLarge
}

// IsFatalStreamError returns true if the error is a fatal stream error.
func IsFatalStreamError(err error) bool {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.IsFatal()
	}
	return false
}

// StreamEncoder writes response chunks as newline-delimited JSON.
// Each chunk is flushed as it is written so clients observe partial
// results and log batches while the call is still running.
type StreamEncoder struct {
	w       io.Writer
	flusher flusher
}

type flusher interface {
	Flush()
}

// NewStreamEncoder creates an encoder on w. If w implements Flush
// (http.ResponseWriter behind http.NewResponseController, or a test
// buffer), every chunk is flushed through it.
func NewStreamEncoder(w io.Writer) *StreamEncoder {
	enc := &StreamEncoder{w: w}
	if f, ok := w.(flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Write encodes one response chunk followed by a newline.
func (e *StreamEncoder) Write(resp types.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return &StreamError{
			Kind: StreamErrorEncode,
			Msg:  "failed to encode response chunk",
			Err:  err,
		}
	}
	if len(data)+1 > MaxLineSize {
		return &StreamError{
			Kind: StreamErrorTooLarge,
			Msg:  fmt.Sprintf("chunk size %d exceeds maximum %d", len(data)+1, MaxLineSize),
		}
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return &StreamError{
			Kind: StreamErrorPartial,
			Msg:  "failed to write response chunk",
			Err:  err,
		}
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// StreamDecoder reads response chunks from a newline-delimited JSON
// stream.
type StreamDecoder struct {
	scanner *bufio.Scanner
}

// NewStreamDecoder creates a decoder on r.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialLineBuffer), MaxLineSize)
	return &StreamDecoder{scanner: scanner}
}

// Read returns the next response chunk.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more chunks)
//   - *StreamError with Kind=StreamErrorTooLarge: chunk exceeds limit (fatal)
//   - *StreamError with Kind=StreamErrorPartial: reader failed mid-stream (fatal)
//   - *StreamError with Kind=StreamErrorDecode: malformed chunk
func (d *StreamDecoder) Read() (types.Response, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp types.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return types.Response{}, &StreamError{
				Kind: StreamErrorDecode,
				Msg:  "failed to decode response chunk",
				Err:  err,
			}
		}
		return resp, nil
	}
	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return types.Response{}, &StreamError{
				Kind: StreamErrorTooLarge,
				Msg:  fmt.Sprintf("chunk exceeds maximum %d", MaxLineSize),
				Err:  err,
			}
		}
		return types.Response{}, &StreamError{
			Kind: StreamErrorPartial,
			Msg:  "failed to read response chunk",
			Err:  err,
		}
	}
	return types.Response{}, io.EOF
}

// ReadAll drains the stream to EOF and returns every chunk read. The
// server may flush one final log batch after the terminal chunk, so
// reading past the terminal is required to observe trailing stdout. A
// stream that ends without any terminal chunk is truncated.
func (d *StreamDecoder) ReadAll() ([]types.Response, error) {
	var chunks []types.Response
	sawTerminal := false
	for {
		resp, err := d.Read()
		if err == io.EOF {
			if !sawTerminal {
				return chunks, &StreamError{
					Kind: StreamErrorPartial,
					Msg:  "stream ended without terminal chunk",
				}
			}
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, resp)
		if resp.OutputType.IsTerminal() {
			sawTerminal = true
		}
	}
}
