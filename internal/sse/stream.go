// Wire format of SSE frames and the response sink frames are written to.

package sse

import (
	"Hearth/internal/entity"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Comment-only frame, keeps intermediaries from closing idle connections without firing onmessage.
var heartbeatFrame = []byte(": keepalive\n\n")

// FormatEvent renders env as one SSE frame: optional id line, event line, data line, blank line.
// The payload is compacted so data always fits on a single line.
func FormatEvent(env entity.EventEnvelope) ([]byte, error) {
	if strings.ContainsAny(env.ID, "\r\n") || strings.ContainsAny(string(env.EventName), "\r\n") || env.EventName == "" {
		return nil, fmt.Errorf("event %q with id %q can't be framed", env.EventName, env.ID)
	}
	var data bytes.Buffer
	if err := json.Compact(&data, env.Payload); err != nil {
		return nil, fmt.Errorf("compacting payload of %s: %w", env.EventName, err)
	}

	var frame bytes.Buffer
	frame.Grow(data.Len() + len(env.ID) + len(env.EventName) + 24)
	if env.ID != "" {
		frame.WriteString("id: ")
		frame.WriteString(env.ID)
		frame.WriteByte('\n')
	}
	frame.WriteString("event: ")
	frame.WriteString(string(env.EventName))
	frame.WriteString("\ndata: ")
	frame.Write(data.Bytes())
	frame.WriteString("\n\n")
	return frame.Bytes(), nil
}

// flushWriter is what a streaming response needs, gin.ResponseWriter satisfies it.
type flushWriter interface {
	http.ResponseWriter
	http.Flusher
}

// responseSink serializes writes to one SSE response and refuses them once ended.
type responseSink struct {
	mu    sync.Mutex
	w     flushWriter
	ended bool
	done  chan struct{}
}

// NewResponseSink wraps a response whose headers were already sent.
func NewResponseSink(w flushWriter) entity.StreamSink {
	return &responseSink{w: w, done: make(chan struct{})}
}

func (s *responseSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return entity.ErrStreamEnded
	}
	if _, err := s.w.Write(frame); err != nil {
		// Broken pipe, the client is gone.
		s.endLocked()
		return err
	}
	s.w.Flush()
	return nil
}

func (s *responseSink) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *responseSink) endLocked() {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

func (s *responseSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *responseSink) Done() <-chan struct{} {
	return s.done
}
