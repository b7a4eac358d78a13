// Package stream implements the Stream Iterator: a
// single-producer/single-consumer lazy finite sequence of chunks with a
// terminal state, modeled the way StreamingResult pulls
// records from a StreamConnection (src/driver/result.go,
// src/driver/streaming_connection.go), a queue plus an at-most-one
// pending waiter, generalized from *Record to an arbitrary chunk type.
package stream

import "sync"

// Result is what Next returns: either a chunk, or the sequence has ended
// (successfully or with an error).
type Result[T any] struct {
	Chunk T
	Done  bool
	Err   error
}

// Iterator is a single-consumer lazy sequence of chunks. The zero value is
// not usable; construct with New.
type Iterator[T any] struct {
	mu      sync.Mutex
	queue   []T
	ended   bool
	endErr  error
	endSent bool // the terminal Result has been delivered to Next once

	// waiter, if non-nil, is a channel some goroutine is blocked reading
	// from inside Next; at most one may exist at a time.
	waiter chan Result[T]

	// ended marks the producer side done; consumerDone is set once the owner has
	// let go of the iterator, either by calling Close or by consuming the
	// terminal Result via Next. cleanup fires exactly once both are true.
	consumerDone bool
	cleanupRun   bool
	cleanup      func()
}

// New creates an empty Iterator. cleanup, if non-nil, is invoked exactly
// once, after both the sequence has ended (FinishOk/SupplyError) and the
// owner has let go of it (Close, or having consumed the terminal Result).
func New[T any](cleanup func()) *Iterator[T] {
	return &Iterator[T]{cleanup: cleanup}
}

// Next returns the next chunk, or a terminal Result if the sequence has
// ended (successfully or with an error). After the terminal Result has
// been consumed once, subsequent calls return a neutral Result{Done: true}.
func (it *Iterator[T]) Next() Result[T] {
	it.mu.Lock()

	if len(it.queue) > 0 {
		chunk := it.queue[0]
		it.queue = it.queue[1:]
		it.mu.Unlock()
		return Result[T]{Chunk: chunk}
	}

	if it.ended {
		if it.endSent {
			it.mu.Unlock()
			return Result[T]{Done: true}
		}
		it.endSent = true
		it.consumerDone = true
		err := it.endErr
		it.mu.Unlock()
		it.maybeCleanup()
		return Result[T]{Done: true, Err: err}
	}

	// Nothing queued yet: register as the pending waiter and block until
	// SupplyChunk/FinishOk/SupplyError wakes us.
	ch := make(chan Result[T], 1)
	it.waiter = ch
	it.mu.Unlock()

	res := <-ch
	if res.Done {
		it.mu.Lock()
		it.endSent = true
		it.consumerDone = true
		it.mu.Unlock()
		it.maybeCleanup()
	}
	return res
}

// Close abandons the sequence. Idempotent; arranges the cleanup callback to
// run once the upstream has also finished (immediately, if it already has).
func (it *Iterator[T]) Close() {
	it.mu.Lock()
	if it.consumerDone {
		it.mu.Unlock()
		return
	}
	it.consumerDone = true
	it.mu.Unlock()
	it.maybeCleanup()
}

// maybeCleanup runs the cleanup callback exactly once, once both the
// producer has ended the sequence and the consumer has let go of it.
func (it *Iterator[T]) maybeCleanup() {
	it.mu.Lock()
	if it.cleanupRun || it.cleanup == nil || !it.ended || !it.consumerDone {
		it.mu.Unlock()
		return
	}
	it.cleanupRun = true
	cleanup := it.cleanup
	it.mu.Unlock()
	cleanup()
}

// SupplyChunk pushes a chunk to the consumer. A no-op once the sequence
// has ended (FinishOk/SupplyError already called).
func (it *Iterator[T]) SupplyChunk(chunk T) {
	it.mu.Lock()
	if it.ended {
		it.mu.Unlock()
		return
	}
	if it.waiter != nil {
		w := it.waiter
		it.waiter = nil
		it.mu.Unlock()
		w <- Result[T]{Chunk: chunk}
		return
	}
	it.queue = append(it.queue, chunk)
	it.mu.Unlock()
}

// FinishOk marks the sequence as successfully ended. Idempotent.
func (it *Iterator[T]) FinishOk() {
	it.end(nil)
}

// SupplyError marks the sequence as ended with an error. Idempotent.
func (it *Iterator[T]) SupplyError(err error) {
	it.end(err)
}

func (it *Iterator[T]) end(err error) {
	it.mu.Lock()
	if it.ended {
		it.mu.Unlock()
		return
	}
	it.ended = true
	it.endErr = err

	if it.waiter != nil {
		w := it.waiter
		it.waiter = nil
		it.mu.Unlock()
		w <- Result[T]{Done: true, Err: err}
		return
	}
	it.mu.Unlock()
	// No one was waiting: the consumer will observe end() on its next
	// Next() call (or may have already abandoned via Close), either of
	// which drives maybeCleanup from its own code path. If Close already
	// ran before end(), trigger cleanup now since that path won't re-fire.
	it.maybeCleanup()
}
