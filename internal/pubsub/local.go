package pubsub

import (
	"context"
	"sync"
)

// defaultSubscriberBuffer bounds a subscriber's queue when no size is
// configured. A repair job emits a few events per page, so even large
// documents fit.
const defaultSubscriberBuffer = 100

// localSub is one subscription's bounded queue.
type localSub struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// deliver queues msg for the subscriber. A full queue drops the message:
// progress events are advisory and the job snapshot endpoint remains the
// source of truth.
func (s *localSub) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
	}
}

func (s *localSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LocalPubSub fans job events out to in-process subscribers. It is the
// default backend for single-instance deployments; multi-instance setups
// use RedisPubSub so websocket clients can follow jobs running on other
// instances.
type LocalPubSub struct {
	mu     sync.RWMutex
	buffer int
	subs   map[string][]*localSub
}

// NewLocalPubSub creates an in-process pub/sub. bufferSize bounds each
// subscriber's queue; values below 1 fall back to the default.
func NewLocalPubSub(bufferSize int) *LocalPubSub {
	if bufferSize < 1 {
		bufferSize = defaultSubscriberBuffer
	}
	return &LocalPubSub{
		buffer: bufferSize,
		subs:   make(map[string][]*localSub),
	}
}

// Publish delivers the payload to every current subscriber of the channel.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	subs := make([]*localSub, len(l.subs[channel]))
	copy(subs, l.subs[channel])
	l.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe registers a new subscription. The returned channel closes when
// ctx is cancelled or the pub/sub is closed.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &localSub{ch: make(chan Message, l.buffer)}

	l.mu.Lock()
	l.subs[channel] = append(l.subs[channel], sub)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.remove(channel, sub)
	}()

	return sub.ch, nil
}

func (l *LocalPubSub) remove(channel string, sub *localSub) {
	l.mu.Lock()
	subs := l.subs[channel]
	for i := range subs {
		if subs[i] == sub {
			l.subs[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	// Close outside the lock; deliver takes the subscriber's own mutex.
	sub.close()
}

// Close closes every subscription.
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	var all []*localSub
	for _, subs := range l.subs {
		all = append(all, subs...)
	}
	l.subs = make(map[string][]*localSub)
	l.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
	return nil
}
