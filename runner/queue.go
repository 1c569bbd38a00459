package runner

import (
	"context"
	"sync"
)

// completionQueue is the many-producer, single-consumer queue runners use to hand
// callbacks back to the scheduling goroutine.
type completionQueue struct {
	mu     sync.Mutex
	items  []func()
	notify chan struct{}
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{notify: make(chan struct{}, 1)}
}

func (q *completionQueue) push(f func()) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until a callback is available or ctx is done
func (q *completionQueue) pop(ctx context.Context) (func(), error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
