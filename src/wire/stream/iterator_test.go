package stream

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIteratorDeliversQueuedChunksThenEnd(t *testing.T) {
	it := New[int](nil)
	it.SupplyChunk(1)
	it.SupplyChunk(2)
	it.FinishOk()

	for _, want := range []int{1, 2} {
		res := it.Next()
		if res.Done || res.Chunk != want {
			t.Fatalf("got %+v, want chunk %d", res, want)
		}
	}
	res := it.Next()
	if !res.Done || res.Err != nil {
		t.Fatalf("expected clean end, got %+v", res)
	}
	// subsequent Next calls are neutral.
	res = it.Next()
	if !res.Done || res.Err != nil {
		t.Fatalf("expected neutral done after consumption, got %+v", res)
	}
}

func TestIteratorAwaiterResolvesOnFirstChunk(t *testing.T) {
	it := New[string](nil)
	resultCh := make(chan Result[string], 1)
	go func() { resultCh <- it.Next() }()

	time.Sleep(10 * time.Millisecond) // let Next() register as waiter
	it.SupplyChunk("hello")

	select {
	case res := <-resultCh:
		if res.Done || res.Chunk != "hello" {
			t.Fatalf("got %+v, want chunk hello", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Next to resolve")
	}
}

func TestSupplyChunkNoOpAfterEnd(t *testing.T) {
	it := New[int](nil)
	it.FinishOk()
	it.SupplyChunk(99) // must be a no-op

	res := it.Next()
	if !res.Done || res.Err != nil {
		t.Fatalf("expected end result, got %+v", res)
	}
}

func TestSupplyErrorDeliveredOnce(t *testing.T) {
	boom := errors.New("boom")
	it := New[int](nil)
	it.SupplyError(boom)

	res := it.Next()
	if !res.Done || res.Err != boom {
		t.Fatalf("expected error %v, got %+v", boom, res)
	}
	res = it.Next()
	if !res.Done || res.Err != nil {
		t.Fatalf("expected neutral done on second call, got %+v", res)
	}
}

func TestCleanupRunsExactlyOnceAfterCloseAndEnd(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	it := New[int](func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	it.Close()
	if calls := func() int { mu.Lock(); defer mu.Unlock(); return calls }(); calls != 0 {
		t.Fatalf("cleanup ran before end: %d calls", calls)
	}

	it.FinishOk()
	it.Next() // not required for cleanup to fire since Close already ran

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected cleanup exactly once, got %d", calls)
	}
}

func TestCleanupRunsOnceWhenEndConsumedWithoutExplicitClose(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	it := New[int](func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	it.FinishOk()
	it.Next() // consumes the terminal result, which lets go of the iterator

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected cleanup exactly once, got %d", calls)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	calls := 0
	it := New[int](func() { calls++ })
	it.FinishOk()
	it.Close()
	it.Close()
	it.Close()
	if calls != 1 {
		t.Fatalf("expected cleanup exactly once across repeated Close, got %d", calls)
	}
}
