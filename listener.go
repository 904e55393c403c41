package avctl

import (
	"fmt"
	"io"
	"sync"
)

// Event identifies a notification delivered to a [Listener]. Values follow
// the classic media player numbering so they can be forwarded to hosts that
// already understand it.
type Event int

const (
	EventNop              Event = 0
	EventPrepared         Event = 1
	EventPlaybackComplete Event = 2
	EventBufferingUpdate  Event = 3
	EventSeekComplete     Event = 4
	EventSetVideoSize     Event = 5
	EventStarted          Event = 6
	EventTimedText        Event = 99
	EventError            Event = 100
	EventInfo             Event = 200
	EventCurrentPosition  Event = 300
	EventSetVideoSAR      Event = 10001
)

// Info codes carried in arg1 of [EventInfo] notifications.
const (
	InfoBufferingStart = 701
	InfoBufferingEnd   = 702
)

func (e Event) String() string {
	switch e {
	case EventNop:
		return "Nop"
	case EventPrepared:
		return "Prepared"
	case EventPlaybackComplete:
		return "PlaybackComplete"
	case EventBufferingUpdate:
		return "BufferingUpdate"
	case EventSeekComplete:
		return "SeekComplete"
	case EventSetVideoSize:
		return "SetVideoSize"
	case EventStarted:
		return "Started"
	case EventTimedText:
		return "TimedText"
	case EventError:
		return "Error"
	case EventInfo:
		return "Info"
	case EventCurrentPosition:
		return "CurrentPosition"
	case EventSetVideoSAR:
		return "SetVideoSAR"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Listener receives session notifications. Notify is called from the
// session's dispatch goroutine; implementations that need to hand events
// to another goroutine should do so without blocking (see [ChannelListener]).
//
// The payload is only valid during the call. Copy it to keep it.
//
// If a listener also implements io.Closer, it is closed when replaced by
// [Session.SetListener] or when the session is released.
type Listener interface {
	Notify(ev Event, arg1, arg2 int, payload []byte)
}

// ListenerFunc adapts a plain function to the [Listener] interface.
type ListenerFunc func(ev Event, arg1, arg2 int, payload []byte)

func (f ListenerFunc) Notify(ev Event, arg1, arg2 int, payload []byte) { f(ev, arg1, arg2, payload) }

// Notification is a [Listener] call captured as a value.
type Notification struct {
	Event   Event
	Arg1    int
	Arg2    int
	Payload []byte
}

const defaultNotificationBuffer = 32

var _ Listener = (*ChannelListener)(nil)

// ChannelListener forwards notifications to a buffered channel. Sends never
// block: when the buffer is full the notification is dropped and counted.
type ChannelListener struct {
	mutex   sync.Mutex
	ch      chan Notification
	closed  bool
	dropped int
}

// NewChannelListener creates a channel listener. A non-positive buffer
// size selects a default.
func NewChannelListener(buffer int) *ChannelListener {
	if buffer <= 0 {
		buffer = defaultNotificationBuffer
	}
	return &ChannelListener{ch: make(chan Notification, buffer)}
}

// Notifications returns the receive side. It is closed by Close().
func (l *ChannelListener) Notifications() <-chan Notification { return l.ch }

// Dropped returns how many notifications were discarded due to a full buffer.
func (l *ChannelListener) Dropped() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.dropped
}

func (l *ChannelListener) Notify(ev Event, arg1, arg2 int, payload []byte) {
	n := Notification{Event: ev, Arg1: arg1, Arg2: arg2}
	if payload != nil {
		n.Payload = append([]byte(nil), payload...)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- n:
	default:
		l.dropped++
	}
}

// Close closes the notification channel. Safe to call more than once.
func (l *ChannelListener) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	return nil
}

// listenerRelay holds the single registered listener and isolates the
// dispatch loop from anything the listener does wrong.
type listenerRelay struct {
	mutex    sync.Mutex
	listener Listener
	closed   bool
	faults   func() // invoked on every recovered listener panic
}

// set installs a new listener, closing the previous one.
func (r *listenerRelay) set(l Listener) {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		closeListener(l)
		return
	}
	prev := r.listener
	r.listener = l
	r.mutex.Unlock()
	closeListener(prev)
}

// notify delivers a notification. Panics are recovered and logged.
func (r *listenerRelay) notify(ev Event, arg1, arg2 int, payload []byte) {
	r.mutex.Lock()
	l, closed := r.listener, r.closed
	r.mutex.Unlock()
	if l == nil || closed {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			pkgLogger.Printf("WARNING: listener panicked while handling %s: %v", ev, rec)
			if r.faults != nil {
				r.faults()
			}
		}
	}()
	l.Notify(ev, arg1, arg2, payload)
}

// close drops the listener for good. Later notifications are discarded.
func (r *listenerRelay) close() {
	r.mutex.Lock()
	l := r.listener
	r.listener = nil
	r.closed = true
	r.mutex.Unlock()
	closeListener(l)
}

func closeListener(l Listener) {
	if c, ok := l.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			pkgLogger.Printf("WARNING: closing listener: %v", err)
		}
	}
}
