package interfaces

import (
	"sync"
	"sync/atomic"

	"github.com/Arceliar/phony"
)

// maxQueuedFrames bounds the frames waiting to be written to one
// connection. Frames past the bound are dropped.
const maxQueuedFrames = 64

const ErrSendQueueFull = interfaceError("send queue is full")

// sendQueue writes frames to one connection from its own actor, so that a
// peer which stops reading only ever stalls its own connection.
type sendQueue struct {
	phony.Inbox
	pending atomic.Int32
	mutex   sync.Mutex
	err     error
}

// push queues frame for write and returns without waiting for it. The
// caller must not modify frame afterwards. Once a write has failed every
// later push returns that error.
func (q *sendQueue) push(frame []byte, write func([]byte) error) error {
	if err := q.failure(); err != nil {
		return err
	}
	if q.pending.Add(1) > maxQueuedFrames {
		q.pending.Add(-1)
		return ErrSendQueueFull
	}
	q.Act(nil, func() {
		defer q.pending.Add(-1)
		if q.failure() != nil {
			return
		}
		if err := write(frame); err != nil {
			q.mutex.Lock()
			q.err = err
			q.mutex.Unlock()
		}
	})
	return nil
}

func (q *sendQueue) failure() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.err
}
