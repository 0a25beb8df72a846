// Package reactive provides the push-stream primitives shared by the
// repositories and the progress aggregator.
//
// A stream is a receive-only channel of Events. Every value is a whole
// snapshot that replaces the previous one, so a slow consumer may observe
// only the latest value (conflation) without losing information. A stream
// ends either by closing its channel or by delivering a single terminal
// Event carrying Err followed by a close. Subscriptions are cancelled by
// cancelling the context they were opened with.
package reactive

import (
	"context"
	"errors"
	"sync"
)

// ErrCompleted is returned by First when a stream closes before emitting.
var ErrCompleted = errors.New("stream completed without a value")

// Event is one emission of a stream: a value or a terminal error.
type Event[T any] struct {
	Value T
	Err   error
}

// Source opens a new subscription. Cancelling ctx ends it.
type Source[T any] func(ctx context.Context) <-chan Event[T]

// Subject is a latest-value broadcaster. New subscribers immediately receive
// the current value if one was published. Delivery to each subscriber is
// conflated: publishing never blocks on slow readers.
type Subject[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	err    error
	done   bool
	subs   map[chan Event[T]]struct{}
	closed chan struct{}
}

// NewSubject creates an empty Subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{
		subs:   make(map[chan Event[T]]struct{}),
		closed: make(chan struct{}),
	}
}

// Publish replaces the current value and pushes it to every subscriber.
// Publishing after Fail or Close is a no-op.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.latest = v
	s.has = true
	for ch := range s.subs {
		offer(ch, Event[T]{Value: v})
	}
}

// Latest returns the current value, if any.
func (s *Subject[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Fail terminates the subject with err. Current subscribers receive the error
// and their channels close; later subscribers receive the error immediately.
func (s *Subject[T]) Fail(err error) {
	s.terminate(err)
}

// Close completes the subject, closing every subscriber channel.
func (s *Subject[T]) Close() {
	s.terminate(nil)
}

func (s *Subject[T]) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	for ch := range s.subs {
		if err != nil {
			offer(ch, Event[T]{Err: err})
		}
		close(ch)
		delete(s.subs, ch)
	}
	close(s.closed)
}

// Subscribers returns the number of live subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe opens a subscription. It satisfies Source.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], 1)

	s.mu.Lock()
	if s.done {
		if s.err != nil {
			ch <- Event[T]{Err: s.err}
		}
		close(ch)
		s.mu.Unlock()
		return ch
	}
	if s.has {
		ch <- Event[T]{Value: s.latest}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.closed:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}()

	return ch
}

// offer places ev in a capacity-1 channel, replacing any unread value.
// Callers must be the only writer.
func offer[T any](ch chan Event[T], ev Event[T]) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- ev
}

// First subscribes to src, returns its first value and cancels the subscription.
func First[T any](ctx context.Context, src Source[T]) (T, error) {
	var zero T

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case ev, ok := <-src(ctx):
		if !ok {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			return zero, ErrCompleted
		}
		if ev.Err != nil {
			return zero, ev.Err
		}
		return ev.Value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Just returns a Source that emits v once and stays open until cancelled.
func Just[T any](v T) Source[T] {
	return func(ctx context.Context) <-chan Event[T] {
		ch := make(chan Event[T], 1)
		ch <- Event[T]{Value: v}
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch
	}
}

// Failed returns a Source whose only emission is err.
func Failed[T any](err error) Source[T] {
	return func(ctx context.Context) <-chan Event[T] {
		ch := make(chan Event[T], 1)
		ch <- Event[T]{Err: err}
		close(ch)
		return ch
	}
}
