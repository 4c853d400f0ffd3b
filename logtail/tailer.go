// Package logtail tails a call's log files so the streaming layer can
// interleave captured output with results.
//
// Files are discovered lazily on every read: a callable may open new
// log files after the call starts, and the tailer picks them up on the
// next flush. Reads are incremental; only complete lines are returned,
// with partial trailing lines carried to the next read.
package logtail

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config controls a tailer.
type Config struct {
	// Dir is the log directory to discover files in.
	Dir string
	// Key is the call key; files named <key>.* belong to the call.
	Key string
	// StartAtEnd skips content already present at first discovery and
	// only returns future appends.
	StartAtEnd bool
}

type fileState struct {
	offset    int64
	remainder []byte
	ready     bool
}

// Tailer incrementally reads the log files belonging to one call key.
type Tailer struct {
	dir        string
	key        string
	startAtEnd bool

	mu    sync.Mutex
	files map[string]*fileState
	order []string
}

// New constructs a tailer for one call key.
func New(cfg Config) (*Tailer, error) {
	if cfg.Dir == "" {
		return nil, errors.New("logtail: tailer requires a directory")
	}
	if cfg.Key == "" {
		return nil, errors.New("logtail: tailer requires a key")
	}
	return &Tailer{
		dir:        cfg.Dir,
		key:        cfg.Key,
		startAtEnd: cfg.StartAtEnd,
		files:      make(map[string]*fileState),
	}, nil
}

// ReadNew discovers any newly created log files for the key and
// returns all complete lines appended since the previous call, in
// file-name order. An absent log directory yields an empty batch.
func (t *Tailer) ReadNew() ([]string, error) {
	if err := t.discover(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	paths := append([]string(nil), t.order...)
	t.mu.Unlock()

	var lines []string
	for _, path := range paths {
		fileLines, err := t.readPath(path)
		if err != nil {
			return lines, err
		}
		lines = append(lines, fileLines...)
	}
	return lines, nil
}

// Paths returns the discovered file paths, sorted.
func (t *Tailer) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Close drops all tracked file state. The tailer opens files per read,
// so there are no descriptors to release; Close exists so callers can
// signal the end of the poll loop explicitly.
func (t *Tailer) Close() {
	t.mu.Lock()
	t.files = make(map[string]*fileState)
	t.order = nil
	t.mu.Unlock()
}

// discover scans the log directory for files named <key>.* and tracks
// new ones, deduplicated by path.
func (t *Tailer) discover() error {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	prefix := t.key + "."
	t.mu.Lock()
	defer t.mu.Unlock()
	added := false
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(t.dir, e.Name())
		if _, ok := t.files[path]; ok {
			continue
		}
		t.files[path] = &fileState{}
		t.order = append(t.order, path)
		added = true
	}
	if added {
		sort.Strings(t.order)
	}
	return nil
}

func (t *Tailer) readPath(path string) (lines []string, retErr error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			retErr = errors.Join(retErr, closeErr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	state := t.files[path]
	if !state.ready {
		if t.startAtEnd {
			state.offset = info.Size()
		}
		state.ready = true
	}
	if info.Size() < state.offset {
		// Truncate/rotate: restart from the beginning.
		state.offset = 0
		state.remainder = nil
	}
	start := state.offset
	t.mu.Unlock()

	if info.Size() == start {
		return nil, nil
	}

	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	payload := append(append([]byte(nil), state.remainder...), chunk...)
	state.offset = start + int64(len(chunk))
	t.mu.Unlock()

	lineStart := 0
	for {
		idx := bytes.IndexByte(payload[lineStart:], '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(payload[lineStart:lineStart+idx], []byte("\r"))
		lines = append(lines, string(line))
		lineStart += idx + 1
	}

	t.mu.Lock()
	state.remainder = append(state.remainder[:0], payload[lineStart:]...)
	t.mu.Unlock()

	return lines, nil
}
