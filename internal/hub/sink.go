// Package hub keeps the in-memory research sessions and fans their events
// out to attached connections.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/CoolGuy2982/AI-Researcher/internal/domain"
)

// Record is one event as stored in a session log.
type Record struct {
	Seq   int
	Ts    int64
	Event domain.Event
	// Data is the encoded wire form, computed once at broadcast time.
	Data []byte
}

// Sink is an output channel attached to a session. Send must not block.
type Sink interface {
	ID() string
	Send(rec Record) error
	Close()
}

// Evicter is implemented by sinks that can take one last record when they
// are dropped for falling behind.
type Evicter interface {
	Evict(rec Record)
}

// ChanSink is a Sink backed by a buffered channel. The owner drains C and
// writes to its transport; C is closed when the sink is closed.
type ChanSink struct {
	id     string
	ch     chan Record
	limit  int
	mu     sync.Mutex
	closed bool
}

// NewChanSink creates a sink holding up to buffer undelivered records.
func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChanSink{
		id: "sink_" + uuid.New().String()[:8],
		// one extra slot for the eviction notice
		ch:    make(chan Record, buffer+1),
		limit: buffer,
	}
}

// ID returns the sink identifier.
func (s *ChanSink) ID() string { return s.id }

// C returns the channel of records to deliver.
func (s *ChanSink) C() <-chan Record { return s.ch }

// Send queues rec without blocking.
func (s *ChanSink) Send(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if len(s.ch) >= s.limit {
		return ErrBufferFull
	}
	s.ch <- rec
	return nil
}

// Evict queues rec in the reserved slot and closes the sink.
func (s *ChanSink) Evict(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- rec:
	default:
	}
	s.closed = true
	close(s.ch)
}

// Close closes the sink. It is safe to call more than once.
func (s *ChanSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Closed reports whether Close has been called.
func (s *ChanSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}

// ErrSinkClosed is returned when sending to a closed sink.
var ErrSinkClosed = &SinkClosedError{}

// SinkClosedError represents a send on a closed sink.
type SinkClosedError struct{}

func (e *SinkClosedError) Error() string {
	return "sink closed"
}
