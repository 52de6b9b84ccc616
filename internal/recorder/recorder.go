// Package recorder writes the raw frames of a chat session as an
// asciinema-v2 style JSON-lines file and reads such files back.
package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/remote-agent-terminal/agentchat/internal/buffer"
)

// FormatVersion is the recording header version.
const FormatVersion = 2

// Header is the first line of a recording.
type Header struct {
	Version   int    `json:"version"`
	Timestamp int64  `json:"timestamp"`
	Endpoint  string `json:"endpoint,omitempty"`
	Session   string `json:"session,omitempty"`
}

// Entry is a single recorded frame.
// Format: [time_offset, direction, data]
type Entry struct {
	Offset    float64
	Direction buffer.Direction
	Data      string
}

// MarshalJSON encodes the entry as a three element array.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, e.Direction, e.Data})
}

// UnmarshalJSON decodes the three element array form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid entry: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	dir, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid direction type")
	}
	switch buffer.Direction(dir) {
	case buffer.Inbound, buffer.Outbound:
	default:
		return fmt.Errorf("invalid direction %q", dir)
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid data type")
	}

	e.Offset = offset
	e.Direction = buffer.Direction(dir)
	e.Data = payload
	return nil
}

// Recorder captures frames in both directions. Frames are always mirrored
// into the ring; they are written out only when a writer is attached.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	ring      *buffer.FrameRing
	startTime time.Time
	mu        sync.Mutex
}

// New creates a Recorder mirroring into ring. w may be nil for ring-only use;
// otherwise the header is written immediately.
func New(w io.Writer, ring *buffer.FrameRing, header Header) (*Recorder, error) {
	r := &Recorder{
		writer:    w,
		ring:      ring,
		startTime: time.Now(),
	}
	if w == nil {
		return r, nil
	}
	if err := r.writeHeader(header); err != nil {
		return nil, err
	}
	return r, nil
}

// Create opens <dir>/<session>.jsonl and records into it.
func Create(dir string, ring *buffer.FrameRing, header Header) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record dir: %w", err)
	}
	path := filepath.Join(dir, header.Session+".jsonl")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r, err := New(file, ring, header)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

func (r *Recorder) writeHeader(h Header) error {
	h.Version = FormatVersion
	if h.Timestamp == 0 {
		h.Timestamp = r.startTime.Unix()
	}

	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Inbound records a frame received from the agent.
func (r *Recorder) Inbound(data []byte) error {
	return r.record(buffer.Inbound, data)
}

// Outbound records a frame sent to the agent.
func (r *Recorder) Outbound(data []byte) error {
	return r.record(buffer.Outbound, data)
}

func (r *Recorder) record(dir buffer.Direction, data []byte) error {
	if r.ring != nil {
		r.ring.Push(dir, data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return nil
	}

	entry := Entry{
		Offset:    time.Since(r.startTime).Seconds(),
		Direction: dir,
		Data:      string(data),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// Ring returns the mirror ring, possibly nil.
func (r *Recorder) Ring() *buffer.FrameRing {
	return r.ring
}

// Close closes the recording file if the recorder owns it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writer = nil
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// Replay reads a recording and calls fn for every entry in order.
// Iteration stops at the first error from fn.
func Replay(rd io.Reader, fn func(Entry) error) (Header, error) {
	var header Header

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return header, fmt.Errorf("failed to read header: %w", err)
		}
		return header, fmt.Errorf("empty recording")
	}
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return header, fmt.Errorf("invalid header: %w", err)
	}
	if header.Version != FormatVersion {
		return header, fmt.Errorf("unsupported recording version %d", header.Version)
	}

	line := 1
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return header, fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(e); err != nil {
			return header, err
		}
	}
	if err := sc.Err(); err != nil {
		return header, fmt.Errorf("failed to read recording: %w", err)
	}
	return header, nil
}
