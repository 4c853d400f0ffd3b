package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// StreamPrinter writes call output as it arrives. Captured log lines
// go to the log writer so a piped result stays clean; partial and
// terminal results go to the output writer, strings raw and
// everything else as compact JSON.
type StreamPrinter struct {
	out    io.Writer
	logOut io.Writer
}

// NewStreamPrinter creates a printer with separate result and log
// writers.
func NewStreamPrinter(out, logOut io.Writer) *StreamPrinter {
	return &StreamPrinter{out: out, logOut: logOut}
}

// OnResponse prints one stream chunk. It matches the client callback
// signature so it can be handed to Call and Get directly.
func (p *StreamPrinter) OnResponse(resp types.Response) error {
	switch resp.OutputType {
	case types.OutputTypeStdout:
		return p.printLogBatch(resp.Data)
	case types.OutputTypeResultStream, types.OutputTypeResult:
		v, err := wire.DecodePayload(resp.Data)
		if err != nil {
			return fmt.Errorf("decode %s chunk: %w", resp.OutputType, err)
		}
		return p.printValue(v)
	default:
		// Exceptions surface as the call's returned error.
		return nil
	}
}

func (p *StreamPrinter) printLogBatch(data []byte) error {
	v, err := wire.DecodePayload(data)
	if err != nil {
		return fmt.Errorf("decode stdout chunk: %w", err)
	}
	switch lines := v.(type) {
	case []string:
		for _, line := range lines {
			fmt.Fprintln(p.logOut, line)
		}
	case []any:
		for _, line := range lines {
			fmt.Fprintln(p.logOut, line)
		}
	default:
		fmt.Fprintln(p.logOut, v)
	}
	return nil
}

func (p *StreamPrinter) printValue(v any) error {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(p.out, s)
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}
