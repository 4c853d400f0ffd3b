package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/justapithecus/adit/ledger"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// maxBodySize caps request bodies at the same bound the stream codec
// enforces per line.
const maxBodySize = wire.MaxLineSize

// errStreamingUnsupported reports a ResponseWriter that cannot flush,
// which would buffer a stream until the call ends.
var errStreamingUnsupported = errors.New("response writer does not support streaming")

// errorBody is the JSON shape of every unary error response.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status and writes the error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	s.logger.Warn("request failed", map[string]any{
		"path":       r.URL.Path,
		"status":     status,
		"code":       code,
		"error":      err.Error(),
		"request_id": requestIDFrom(r.Context()),
	})
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestIDFrom(r.Context()),
	})
}

// classify maps domain errors onto HTTP status codes. Unknown errors
// are treated as bad requests because every route validates input
// before touching shared state.
func classify(err error) (int, string) {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, types.ErrEnvNotFound):
		return http.StatusNotFound, "env_not_found"
	case errors.Is(err, types.ErrKeyNotFound):
		return http.StatusNotFound, "key_not_found"
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, runtime.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, types.ErrInvocation):
		return http.StatusInternalServerError, "invocation_failed"
	case errors.Is(err, errProvision):
		return http.StatusBadGateway, "provision_failed"
	case errors.Is(err, errStreamingUnsupported), errors.As(err, &pathErr):
		return http.StatusInternalServerError, "internal"
	default:
		return http.StatusBadRequest, "bad_request"
	}
}

// decodeMessage reads the request body as a Message envelope. An empty
// body yields an empty message.
func decodeMessage(r *http.Request) (*types.Message, error) {
	var msg types.Message
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(&msg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// startStream commits the response to NDJSON streaming. After this
// point errors travel in-band as exception chunks.
func startStream(w http.ResponseWriter) (*wire.StreamEncoder, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, errStreamingUnsupported
	}
	w.Header().Set("Content-Type", wire.ContentTypeNDJSON)
	w.WriteHeader(http.StatusOK)
	return wire.NewStreamEncoder(w), nil
}

// operation is the per-request activity accumulator. Handlers fill Env
// and Key as they learn them, then finish through done or fail.
type operation struct {
	name    string
	env     string
	key     string
	started time.Time
}

func startOp(name string) *operation {
	return &operation{name: name, started: time.Now().UTC()}
}

// fail records the operation and writes the error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op *operation, err error) {
	s.recordOp(r.Context(), op, err)
	s.writeError(w, r, err)
}

// done records the operation and writes the success body.
func (s *Server) done(w http.ResponseWriter, r *http.Request, op *operation, v any) {
	s.recordOp(r.Context(), op, nil)
	writeJSON(w, http.StatusOK, v)
}

// recordOp writes one activity entry for the operation.
func (s *Server) recordOp(ctx context.Context, op *operation, err error) {
	entry := ledger.Entry{
		Op:       op.name,
		Env:      op.env,
		Key:      op.key,
		Status:   ledger.StatusOK,
		Duration: time.Since(op.started),
	}
	switch {
	case err == nil:
	case errors.Is(err, types.ErrAccessDenied):
		entry.Status = ledger.StatusDenied
		entry.Detail = err.Error()
	default:
		entry.Status = ledger.StatusError
		entry.Detail = err.Error()
	}
	if recErr := s.cfg.Recorder.Record(ctx, entry); recErr != nil {
		s.logger.Warn("activity record failed", map[string]any{
			"op":    op.name,
			"error": recErr.Error(),
		})
	}
}
