// Package channel provides the channel primitives the pipeline needs beyond
// what native channels offer: an unbounded FIFO channel whose sends never
// block for capacity, and a dynamic multi-channel receive race.
//
// Everything bounded is a native Go channel. Native channels already carry
// the full coordination contract the pipeline relies on: blocking send and
// receive, rendezvous at capacity zero, a one-shot close as the "no more
// work" signal, and a loud panic on send-after-close or double close.
package channel

import "sync/atomic"

// Unbounded is a FIFO channel with no capacity bound. Send never suspends
// waiting for space; buffered values are held in memory until received.
//
// Lifecycle matches a native channel: Close signals no more sends, values
// already buffered remain receivable, and Out is closed once the buffer is
// drained. Sending after Close or closing twice panics, exactly as with a
// native channel.
type Unbounded[T any] struct {
	in   chan T
	out  chan T
	size atomic.Int64
}

// NewUnbounded creates an unbounded channel and starts its pump goroutine.
// The pump exits once the channel is closed and drained.
func NewUnbounded[T any]() *Unbounded[T] {
	u := &Unbounded[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go u.pump()

	return u
}

// Send enqueues v. It never blocks waiting for capacity. Send panics if the
// channel has been closed.
func (u *Unbounded[T]) Send(v T) {
	u.in <- v
}

// Out returns the receive endpoint. After Close, it delivers the remaining
// buffered values and is then closed.
func (u *Unbounded[T]) Out() <-chan T {
	return u.out
}

// Close signals that no more values will be sent. Closing twice panics.
func (u *Unbounded[T]) Close() {
	close(u.in)
}

// Len reports how many values are currently buffered. The count is advisory:
// it trails the pump by a scheduling instant.
func (u *Unbounded[T]) Len() int {
	return int(u.size.Load())
}

// pump owns the overflow queue. It is the only goroutine touching the queue,
// so no lock is needed: values flow in on one channel, out on the other.
func (u *Unbounded[T]) pump() {
	var queue []T
	in := u.in

	for {
		var out chan T
		var next T

		if len(queue) > 0 {
			out = u.out
			next = queue[0]
		} else if in == nil {
			// Closed and drained: terminal state.
			close(u.out)
			return
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, v)
			u.size.Add(1)
		case out <- next:
			queue = queue[1:]
			u.size.Add(-1)
			if len(queue) == 0 {
				queue = nil
			}
		}
	}
}
