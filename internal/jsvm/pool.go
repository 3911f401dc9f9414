package jsvm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

// PoolConfig holds configuration for the VM pool.
type PoolConfig struct {
	// MaxSize is the maximum number of VM instances in the pool.
	MaxSize int
	// IdleTimeout is the duration after which an idle VM is evicted.
	IdleTimeout time.Duration
	// AcquireTimeout is the maximum time to wait for a VM.
	AcquireTimeout time.Duration
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:        5,
		IdleTimeout:    5 * time.Minute,
		AcquireTimeout: 5 * time.Second,
	}
}

// vmInstance wraps a goja.Runtime with usage metadata.
type vmInstance struct {
	vm         *goja.Runtime
	lastUsedAt time.Time
}

// isExpired checks if the instance has exceeded the idle timeout.
func (v *vmInstance) isExpired(idleTimeout time.Duration) bool {
	return time.Since(v.lastUsedAt) > idleTimeout
}

// VMPool manages a pool of goja.Runtime instances.
type VMPool struct {
	pool           chan *vmInstance
	maxSize        int
	idleTimeout    time.Duration
	acquireTimeout time.Duration
	createCount    atomic.Int64

	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
}

// NewVMPool creates a new VM pool with the given configuration.
func NewVMPool(cfg PoolConfig) *VMPool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 5
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}

	return &VMPool{
		pool:           make(chan *vmInstance, cfg.MaxSize),
		maxSize:        cfg.MaxSize,
		idleTimeout:    cfg.IdleTimeout,
		acquireTimeout: cfg.AcquireTimeout,
		closedCh:       make(chan struct{}),
	}
}

// Acquire retrieves a VM instance from the pool or creates a new one.
// It blocks until a VM is available, the context is cancelled, or the
// acquire timeout elapses.
func (p *VMPool) Acquire(ctx context.Context) (*goja.Runtime, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), p.acquireTimeout)
		defer cancel()
	}

	// Fast path: reuse a pooled instance.
	select {
	case inst := <-p.pool:
		if inst != nil && !inst.isExpired(p.idleTimeout) {
			inst.lastUsedAt = time.Now()
			return inst.vm, nil
		}
		// Expired instance, fall through and replace it.
		p.createCount.Add(-1)
	default:
	}

	// Create a new instance if under capacity.
	for {
		current := p.createCount.Load()
		if current >= int64(p.maxSize) {
			break
		}
		if p.createCount.CompareAndSwap(current, current+1) {
			return goja.New(), nil
		}
	}

	// At capacity: wait for a release.
	select {
	case inst := <-p.pool:
		if inst == nil || inst.isExpired(p.idleTimeout) {
			return goja.New(), nil
		}
		inst.lastUsedAt = time.Now()
		return inst.vm, nil
	case <-ctx.Done():
		return nil, ErrPoolExhausted
	case <-p.closedCh:
		return nil, ErrPoolClosed
	}
}

// Release returns a VM instance to the pool.
// Injected globals are cleared before the VM becomes reusable.
func (p *VMPool) Release(vm *goja.Runtime) {
	if vm == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	clearGlobals(vm)

	inst := &vmInstance{vm: vm, lastUsedAt: time.Now()}
	select {
	case p.pool <- inst:
	default:
		// Pool is full, discard this VM.
		p.createCount.Add(-1)
	}
}

// clearGlobals removes injected global objects from the VM.
func clearGlobals(vm *goja.Runtime) {
	_ = vm.GlobalObject().Delete("console")
	_ = vm.GlobalObject().Delete("steward")
	vm.ClearInterrupt()
}

// Close shuts down the pool and releases all resources.
func (p *VMPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closedCh)
	p.mu.Unlock()

	close(p.pool)
	for range p.pool {
		p.createCount.Add(-1)
	}
	return nil
}

// Stats returns current pool statistics.
func (p *VMPool) Stats() PoolStats {
	return PoolStats{
		MaxSize: p.maxSize,
		Created: int(p.createCount.Load()),
		Pooled:  len(p.pool),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	MaxSize int
	Created int
	Pooled  int
}
