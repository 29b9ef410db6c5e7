package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

const maxLineSize = 1 << 20

// EventStream reads an upstream text/event-stream body line by line.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	log     *logger.Logger
}

// NewEventStream wraps body. cancel, when non-nil, is called on Close.
func NewEventStream(body io.ReadCloser, cancel context.CancelFunc, log *logger.Logger) *EventStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	if log == nil {
		log = logger.GetGlobal()
	}
	return &EventStream{body: body, scanner: sc, cancel: cancel, log: log}
}

// Next returns the next decodable data event. Lines that are not data
// lines are ignored and undecodable payloads are logged and skipped.
// It returns io.EOF once the stream is exhausted.
func (s *EventStream) Next() (StreamEvent, error) {
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			return StreamEvent{}, io.EOF
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			s.log.Warn("skipping undecodable upstream event", "error", err.Error(), "data", payload)
			continue
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, err
	}
	return StreamEvent{}, io.EOF
}

// Close releases the response body.
func (s *EventStream) Close() error {
	err := s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}
