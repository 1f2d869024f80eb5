package ingest

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool is stopped")

// Task is a unit of work run by a shard.
type Task func()

// ShardedPool runs tasks on a fixed set of workers, routing each key to the same worker.
// Tasks for one key run in submission order; different keys run in parallel.
type ShardedPool struct {
	shards []chan Task
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewShardedPool creates a pool with n workers, each with a queue of depth tasks.
func NewShardedPool(n, depth int) *ShardedPool {
	if n <= 0 {
		n = 1
	}
	if depth <= 0 {
		depth = 64
	}
	p := &ShardedPool{shards: make([]chan Task, n)}
	for i := range p.shards {
		p.shards[i] = make(chan Task, depth)
	}
	return p
}

// Start launches the workers.
func (p *ShardedPool) Start() {
	for _, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(ch)
	}
}

func (p *ShardedPool) worker(tasks <-chan Task) {
	defer p.wg.Done()
	for task := range tasks {
		task()
	}
}

// Submit queues task on key's shard, blocking while the shard is full.
func (p *ShardedPool) Submit(ctx context.Context, key string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.shards[p.shardFor(key)] <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (p *ShardedPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, ch := range p.shards {
			close(ch)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *ShardedPool) shardFor(key string) int {
	return int(fnv32(key) % uint32(len(p.shards)))
}

// fnv32 is 32-bit FNV-1a.
func fnv32(key string) uint32 {
	hash := uint32(2166136261)
	const prime32 = uint32(16777619)
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= prime32
	}
	return hash
}
