package avctl

import (
	"fmt"
	"time"
)

// engines that create their message source lazily are polled at this rate
// until the source shows up
const sourcePollInterval = 10 * time.Millisecond

// run is the dispatch loop. It waits until an engine is installed, then
// consumes the engine's messages until the session aborts, the engine is
// replaced, or the message source fails.
func (s *Session) run(done chan struct{}) {
	defer close(done)

	for {
		s.mutex.Lock()
		for s.engine == nil && !s.abort {
			s.armed.Wait()
		}
		if s.abort {
			s.mutex.Unlock()
			return
		}
		engine := s.engine
		s.mutex.Unlock()

		source := engine.MessageSource()
		if source == nil {
			time.Sleep(sourcePollInterval)
			continue
		}

		msg, err := source.GetMessage()
		if err != nil {
			s.mutex.Lock()
			abort, stale := s.abort, s.engine != engine
			s.mutex.Unlock()
			if abort {
				return
			}
			if stale {
				continue
			}
			s.terminate(err)
			return
		}

		s.handleMessage(engine, &msg)
		msg.release()
	}
}

// terminate marks the loop dead after an unrecoverable message source
// failure. A pending prepare is resolved and the listener gets a final
// error notification.
func (s *Session) terminate(cause error) {
	err := fmt.Errorf("%w: %v", ErrFatalLoopTermination, cause)
	s.logf("WARNING: dispatch loop terminated: %v", cause)

	s.mutex.Lock()
	s.loopDead = true
	s.loopErr = err
	s.noLockResolvePrepare(err)
	s.mutex.Unlock()

	s.relay.notify(EventError, StatusFatalLoop, 0, nil)
}

// handleMessage handles a single message from engine.
func (s *Session) handleMessage(engine Engine, msg *Message) {
	s.mutex.Lock()
	stale := s.engine != engine
	s.mutex.Unlock()
	if stale {
		s.stats.update(func(st *Stats) { st.StaleMessages++ })
		s.debugf("dropping %s from a reset engine", msg.Kind)
		return
	}

	s.stats.update(func(st *Stats) { st.MessagesDispatched++ })
	s.debugf("message %s (%d, %d)", msg.Kind, msg.Arg1, msg.Arg2)

	switch msg.Kind {
	case MsgFlush:
		s.relay.notify(EventNop, 0, 0, nil)

	case MsgError:
		s.mutex.Lock()
		if s.prepare != nil {
			s.noLockResolvePrepare(&StatusError{Op: "prepare", Code: msg.Arg1})
		} else if s.state == Preparing {
			s.state = Initialized
		}
		s.mutex.Unlock()
		s.logf("engine error: status=%d", msg.Arg1)
		s.relay.notify(EventError, msg.Arg1, 0, nil)

	case MsgPrepared:
		s.mutex.Lock()
		if s.prepare != nil {
			s.noLockResolvePrepare(nil)
		} else if s.state == Preparing {
			s.state = Prepared
		}
		s.mutex.Unlock()
		s.relay.notify(EventPrepared, 0, 0, nil)

	case MsgStarted:
		// engines may start on their own (start-on-prepared); a report
		// overtaken by a host Pause or Stop leaves the state alone
		if engine.IsPlaying() {
			s.mutex.Lock()
			switch s.state {
			case Prepared, Paused, Stopped:
				s.state = Started
			}
			s.mutex.Unlock()
		}
		s.relay.notify(EventStarted, 0, 0, nil)

	case MsgCompleted:
		s.mutex.Lock()
		if s.state == Started {
			s.state = Stopped
		}
		s.mutex.Unlock()
		s.relay.notify(EventPlaybackComplete, 0, 0, nil)

	case MsgVideoSizeChanged:
		s.relay.notify(EventSetVideoSize, msg.Arg1, msg.Arg2, nil)

	case MsgSARChanged:
		s.relay.notify(EventSetVideoSAR, msg.Arg1, msg.Arg2, nil)

	case MsgBufferingStart:
		s.relay.notify(EventInfo, InfoBufferingStart, msg.Arg1, nil)

	case MsgBufferingEnd:
		s.relay.notify(EventInfo, InfoBufferingEnd, msg.Arg1, nil)

	case MsgBufferingUpdate:
		s.relay.notify(EventBufferingUpdate, msg.Arg1, msg.Arg2, nil)

	case MsgTimedText:
		s.relay.notify(EventTimedText, 0, 0, msg.Payload)

	case MsgCurrentPosition:
		s.relay.notify(EventCurrentPosition, msg.Arg1, msg.Arg2, nil)

	case MsgSeekComplete:
		s.completeSeek(engine)
		s.relay.notify(EventSeekComplete, 0, 0, nil)

	case MsgRequestPrepare:
		if _, err := s.beginPrepare(); err != nil {
			s.logf("WARNING: prepare request ignored: %v", err)
		}

	case MsgRequestStart:
		s.debugf("start requested, waiting for the host to call Start()")

	case MsgRequestPause:
		s.Pause()

	case MsgRequestSeek:
		s.requestSeek(engine, int64(msg.Arg1))

	case MsgOpenInput, MsgFindStreamInfo, MsgVideoRotationChanged,
		MsgVideoRenderingStart, MsgAudioRenderingStart, MsgAudioStart,
		MsgVideoStart, MsgBufferingTimeUpdate, MsgPlaybackStateChanged:
		// informational only

	default:
		s.stats.update(func(st *Stats) { st.UnknownMessages++ })
		s.logf("WARNING: unknown message %s (%d, %d)", msg.Kind, msg.Arg1, msg.Arg2)
	}
}

// requestSeek issues a deferred seek, or parks it behind the one in flight.
func (s *Session) requestSeek(engine Engine, msec int64) {
	s.mutex.Lock()
	if s.seek.inFlight {
		s.seek.parked = append(s.seek.parked, msec)
		s.mutex.Unlock()
		return
	}
	if s.seek.deferred > 0 {
		s.seek.deferred--
	}
	s.seek.inFlight = true
	s.seek.target = msec
	s.mutex.Unlock()

	s.issueSeek(engine, msec)
}

// completeSeek clears the in-flight seek and issues the oldest parked one.
func (s *Session) completeSeek(engine Engine) {
	s.mutex.Lock()
	s.seek.inFlight = false
	if len(s.seek.parked) == 0 {
		s.mutex.Unlock()
		return
	}
	next := s.seek.parked[0]
	s.seek.parked = s.seek.parked[1:]
	if s.seek.deferred > 0 {
		s.seek.deferred--
	}
	s.seek.inFlight = true
	s.seek.target = next
	s.mutex.Unlock()

	s.issueSeek(engine, next)
}
