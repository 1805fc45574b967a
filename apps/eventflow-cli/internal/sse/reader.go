// Package sse decodes a text/event-stream incrementally.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxLineSize = 1 << 20

// Event is one dispatched server-sent event
type Event struct {
	ID    string
	Event string
	Data  []byte
	Retry time.Duration
}

// Name returns the event name, "message" when the server sent none
func (e *Event) Name() string {
	if e.Event == "" {
		return "message"
	}
	return e.Event
}

// Reader reads events from a stream as they arrive
type Reader struct {
	scanner *bufio.Scanner
	lastID  string
}

// NewReader creates a Reader on r
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{scanner: sc}
}

// LastEventID returns the id of the most recent event that carried one
func (r *Reader) LastEventID() string {
	return r.lastID
}

// Next blocks until the next event is dispatched. It returns io.EOF when the
// stream ends cleanly; a trailing event without a blank line is discarded.
func (r *Reader) Next() (*Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
		touched bool
	)

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if !touched {
				continue
			}
			if !hasData {
				ev, data, touched = Event{}, bytes.Buffer{}, false
				continue
			}
			ev.Data = data.Bytes()
			if ev.ID != "" {
				r.lastID = ev.ID
			}
			return &ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		touched = true

		switch field {
		case "event":
			ev.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
