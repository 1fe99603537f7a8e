package browser

import (
	"context"
	"time"
)

// dialogQueue holds the messages of dialogs that were already accepted
type dialogQueue struct {
	ch chan string
}

func newDialogQueue(size int) *dialogQueue {
	return &dialogQueue{ch: make(chan string, size)}
}

// push never blocks; messages beyond capacity are dropped
func (q *dialogQueue) push(msg string) {
	select {
	case q.ch <- msg:
	default:
	}
}

// drain returns the oldest queued message, waiting up to timeout for one
func (q *dialogQueue) drain(ctx context.Context, timeout time.Duration) (string, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
	}
	if timeout <= 0 {
		return "", false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.ch:
		return msg, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}
