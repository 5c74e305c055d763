package fsiproc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// transport implements the line-delimited JSON framing over the service's
// stdin/stdout. It wraps a reader and a writer; the writer is protected by
// a mutex so concurrent requests interleave at packet granularity.
type transport struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

func newTransport(reader io.Reader, writer io.Writer) *transport {
	return &transport{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// send marshals the packet and writes it as a single newline-terminated
// line.
func (t *transport) send(p packet) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// receive reads and parses the next packet, skipping blank lines. It blocks
// until a complete line arrives or the underlying reader fails.
func (t *transport) receive() (*packet, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var p packet
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("parse packet: %w", err)
		}
		return &p, nil
	}
}
