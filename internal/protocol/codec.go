package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxBufferSize bounds a single frame (including its trailing newline).
// A line that would exceed this is treated as hostile per the wire
// codec's contract: the connection is fatally dropped rather than the
// frame merely discarded.
const MaxBufferSize = 1 << 20 // 1 MiB

// ErrBufferOverflow is returned by Decoder.Next when a line exceeds
// MaxBufferSize before a newline is found.
var ErrBufferOverflow = errors.New("protocol: frame exceeds max buffer size")

// Decoder reads newline-delimited JSON messages off a byte stream.
// Malformed JSON on a line is dropped (logged by the caller) and
// decoding continues with the next line; an oversize line is fatal.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r. The scanner's buffer is sized to MaxBufferSize so
// a line longer than that surfaces as bufio.ErrTooLong, which Next
// translates to ErrBufferOverflow.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxBufferSize)
	return &Decoder{scanner: s}
}

// Next returns the next well-formed Message, skipping and discarding any
// line that fails to parse as JSON. It returns io.EOF when the stream is
// exhausted and ErrBufferOverflow when a line exceeds MaxBufferSize.
// malformed reports how many malformed lines were skipped before a good
// one was found (0 on the common path), so callers can log it.
func (d *Decoder) Next() (msg Message, malformed int, err error) {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				if errors.Is(err, bufio.ErrTooLong) {
					return Message{}, malformed, ErrBufferOverflow
				}
				return Message{}, malformed, err
			}
			return Message{}, malformed, io.EOF
		}
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if jerr := json.Unmarshal(line, &msg); jerr != nil {
			malformed++
			continue
		}
		return msg, malformed, nil
	}
}

// Encoder writes newline-delimited JSON messages to a byte stream.
// Writes are serialized with a mutex since a daemon's broadcast path and
// its per-connection reply path may both write concurrently.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("protocol: marshal message: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(raw); err != nil {
		return err
	}
	_, err = e.w.Write([]byte{'\n'})
	return err
}
