package hub

import (
	"sync"
	"testing"
)

func TestPoolPreservesPerConversationOrder(t *testing.T) {
	p := newPool(4)
	defer p.close()

	const jobs = 100
	var mu sync.Mutex
	seen := make([]int, 0, jobs)
	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		i := i
		if err := p.submit("same-conversation", func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()

	for i, got := range seen {
		if got != i {
			t.Fatalf("job %d ran at position %d", got, i)
		}
	}
}

func TestPoolRunsConversationsInParallel(t *testing.T) {
	p := newPool(2)
	defer p.close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.submit("conversation-a", func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	<-started

	// conversation-b lands on the other worker and completes while a's
	// job is still blocked.
	doneB := make(chan struct{})
	submitted := false
	for _, id := range []string{"conversation-b", "conversation-c", "conversation-d"} {
		if shard(id, 2) != shard("conversation-a", 2) {
			if err := p.submit(id, func() { close(doneB) }); err != nil {
				t.Fatalf("submit %s: %v", id, err)
			}
			submitted = true
			break
		}
	}
	if !submitted {
		t.Skip("no test conversation hashed to the second worker")
	}
	<-doneB
	close(release)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p := newPool(1)
	p.close()
	if err := p.submit("x", func() {}); err != ErrPoolClosed {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
