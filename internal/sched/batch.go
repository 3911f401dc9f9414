package sched

import (
	"context"
	"sync"
)

// batch groups the calls admitted from one submission. All calls share a
// cancellation token scoped to the batch; completion fires exactly once,
// after every call is terminal, with calls in submission order.
type batch struct {
	id     string
	calls  []*Call
	cancel context.CancelFunc
	once   sync.Once
}

// run launches one goroutine per call and a joiner that delivers the
// completion callback. It returns immediately.
func (b *batch) run(ctx context.Context, in *Instance) {
	var wg sync.WaitGroup
	for _, call := range b.calls {
		wg.Add(1)
		go func(c *Call) {
			defer wg.Done()
			in.runCall(ctx, c)
		}(call)
	}

	go func() {
		wg.Wait()
		b.complete(in)
		b.cancel()
	}()
}

// complete removes the batch's calls from the tracked set and hands the
// terminal calls to the consumer. Runs at most once.
func (b *batch) complete(in *Instance) {
	b.once.Do(func() {
		in.mu.Lock()
		for _, c := range b.calls {
			delete(in.tracked, c.ID())
		}
		delete(in.batches, b.id)
		in.mu.Unlock()

		if cb := in.deps.OnBatchComplete; cb != nil {
			cb(in.id, b.calls, in.IsPrimary())
		}
		for _, c := range b.calls {
			c.markDelivered()
		}
	})
}
