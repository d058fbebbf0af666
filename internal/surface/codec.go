// Package surface runs the presentation side of the bridge: it launches the
// presentation process and speaks the newline-delimited JSON frame protocol
// over its stdio, and it provides a headless presentation surface.
package surface

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize bounds a single frame line.
const maxFrameSize = 4 << 20

// frameWriter writes one JSON value per line. Safe for concurrent use.
type frameWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newFrameWriter(w io.Writer) *frameWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &frameWriter{enc: enc}
}

func (w *frameWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrames calls fn for every non-empty line until r is exhausted.
func readFrames(r io.Reader, fn func(line []byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return sc.Err()
}
