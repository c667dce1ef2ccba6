// Package memory is an in-process Sender for tests and local runs: it
// records every message and can be told to fail.
package memory

import (
	"context"
	"sync"

	"fintrack/internal/notify"
)

type Sender struct {
	mu       sync.Mutex
	sent     []notify.Message
	failNext error
}

func New() *Sender {
	return &Sender{}
}

func (s *Sender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (s *Sender) Sent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// FailNext makes the next Send return err.
func (s *Sender) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

var _ notify.Sender = (*Sender)(nil)
