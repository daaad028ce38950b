package hub

import (
	"errors"
	"hash/fnv"
	"sync"
)

// ErrPoolClosed reports a submission to a closed pool.
var ErrPoolClosed = errors.New("worker pool closed")

// pool runs handler invocations off the dispatch path. Jobs are sharded by
// conversation id onto a fixed worker, so messages of one conversation run
// in arrival order while different conversations proceed in parallel.
type pool struct {
	queues []chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

const defaultQueueDepth = 64

func newPool(workers int) *pool {
	if workers <= 0 {
		workers = 1
	}
	p := &pool{queues: make([]chan func(), workers)}
	for i := range p.queues {
		queue := make(chan func(), defaultQueueDepth)
		p.queues[i] = queue
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range queue {
				job()
			}
		}()
	}
	return p
}

// submit enqueues a job on the worker owning the conversation. Blocks when
// that worker's queue is full, which back-pressures the caller instead of
// reordering.
func (p *pool) submit(conversationID string, job func()) error {
	// The read lock is held across the send so close() cannot close a
	// queue while a submission is in flight.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queues[shard(conversationID, len(p.queues))] <- job
	return nil
}

// close stops intake and waits for queued jobs to drain.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for _, queue := range p.queues {
		close(queue)
	}
	p.wg.Wait()
}

func shard(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
