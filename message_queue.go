package avctl

import "sync"

// MessageSource is the ordered, blocking delivery channel from an engine
// to the session. It has a single producer side (the engine, plus deferred
// requests posted by the session) and a single consumer (the dispatch loop).
type MessageSource interface {
	// PostMessage appends a message. It never blocks.
	PostMessage(kind MessageKind, arg1, arg2 int, payload []byte)

	// GetMessage blocks until a message is available. A non-nil error is
	// fatal for the source: no more messages will ever be delivered.
	GetMessage() (Message, error)
}

var _ MessageSource = (*MessageQueue)(nil)

// MessageQueue is an unbounded FIFO [MessageSource]. Abort() poisons the
// queue: pending and future GetMessage() calls return [ErrQueueAborted],
// which is what lets a session join its dispatch loop on teardown.
type MessageQueue struct {
	mutex   sync.Mutex
	cond    *sync.Cond
	pending []Message
	aborted bool
}

// NewMessageQueue creates an empty queue.
func NewMessageQueue() *MessageQueue {
	q := &MessageQueue{pending: make([]Message, 0, 16)}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

// PostMessage appends a message. Messages posted after Abort() are dropped.
func (q *MessageQueue) PostMessage(kind MessageKind, arg1, arg2 int, payload []byte) {
	q.PostOwned(kind, arg1, arg2, payload, nil)
}

// PostOwned is like PostMessage, but free will be invoked with the payload
// once the consumer is done with it (or when the message is discarded).
func (q *MessageQueue) PostOwned(kind MessageKind, arg1, arg2 int, payload []byte, free func([]byte)) {
	msg := Message{Kind: kind, Arg1: arg1, Arg2: arg2, Payload: payload, free: free}

	q.mutex.Lock()
	if q.aborted {
		q.mutex.Unlock()
		msg.release()
		return
	}
	q.pending = append(q.pending, msg)
	q.mutex.Unlock()
	q.cond.Signal()
}

// GetMessage blocks until a message is available or the queue is aborted.
func (q *MessageQueue) GetMessage() (Message, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.pending) == 0 && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted {
		return Message{}, ErrQueueAborted
	}

	msg := q.pending[0]
	q.pending[0] = Message{}
	q.pending = q.pending[1:]
	if len(q.pending) == 0 {
		q.pending = q.pending[:0:0] // let the backing array go once drained
	}
	return msg, nil
}

// Remove discards every pending message of the given kind. Engines use it
// to drop reports superseded by a newer one.
func (q *MessageQueue) Remove(kind MessageKind) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	kept := q.pending[:0]
	for _, msg := range q.pending {
		if msg.Kind == kind {
			msg.release()
			continue
		}
		kept = append(kept, msg)
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = Message{}
	}
	q.pending = kept
}

// Abort flushes the queue and wakes up every blocked GetMessage() call.
// The queue stays aborted for good.
func (q *MessageQueue) Abort() {
	q.mutex.Lock()
	q.aborted = true
	q.noLockFlush()
	q.mutex.Unlock()
	q.cond.Broadcast()
}

func (q *MessageQueue) noLockFlush() {
	for i := range q.pending {
		q.pending[i].release()
	}
	q.pending = q.pending[:0]
}
