package avctl

import "sync"

// Stats is a snapshot of a session's counters.
type Stats struct {
	MessagesDispatched uint64 // messages handled by the dispatch loop
	UnknownMessages    uint64 // messages with an unrecognized kind
	StaleMessages      uint64 // messages dropped because their engine was reset
	SeeksIssued        uint64 // engine-level seeks, direct or deferred
	SeeksDeferred      uint64 // seeks queued behind an in-flight one
	ListenerFaults     uint64 // listener panics recovered by the relay
	EnginesCreated     uint64
}

type statsCounter struct {
	mutex sync.Mutex
	stats Stats
}

func (c *statsCounter) update(fn func(*Stats)) {
	c.mutex.Lock()
	fn(&c.stats)
	c.mutex.Unlock()
}

func (c *statsCounter) snapshot() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stats
}
