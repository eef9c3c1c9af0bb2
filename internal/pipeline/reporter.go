package pipeline

import "sync"

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) OnEvent(ProgressEvent) {}

// ChannelReporter buffers progress events for consumers reading from
// Events(). When the buffer is full the oldest event is dropped so the
// pipeline never blocks on a slow consumer.
type ChannelReporter struct {
	ch     chan ProgressEvent
	mu     sync.Mutex
	closed bool
}

// NewChannelReporter creates a reporter with the given buffer size.
func NewChannelReporter(bufferSize int) *ChannelReporter {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &ChannelReporter{
		ch: make(chan ProgressEvent, bufferSize),
	}
}

// OnEvent enqueues the event, evicting the oldest buffered event if needed.
func (r *ChannelReporter) OnEvent(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for {
		select {
		case r.ch <- event:
			return
		default:
		}
		select {
		case <-r.ch:
		default:
		}
	}
}

// Events returns the consumer side of the buffer.
func (r *ChannelReporter) Events() <-chan ProgressEvent {
	return r.ch
}

// Close closes the event channel. OnEvent calls after Close are dropped.
func (r *ChannelReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ProgressEvent)

func (f ReporterFunc) OnEvent(event ProgressEvent) {
	f(event)
}
