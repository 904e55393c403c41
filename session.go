package avctl

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hajimehoshi/ebiten/v2"
)

// A [Session] is the playback control facade: it owns at most one [Engine]
// at a time, serializes lifecycle commands against it, and runs a dispatch
// goroutine that consumes the engine's messages and relays them to the
// registered [Listener].
//
// Usage is similar to a classic media player:
//   - Create a [NewSession]() and register a listener with [Session.SetListener]().
//   - [Session.SetDataSource]() creates the engine lazily and binds the video device.
//   - [Session.Prepare]() (blocking) or [Session.PrepareAsync]().
//   - [Session.Start](), [Session.Pause](), [Session.SeekTo]()...
//   - [Session.Reset]() to switch media, [Session.Release]() when done.
//
// Seeks are coalesced: while one is in flight, later requests are queued and
// issued in order as earlier ones complete. Nothing is dropped, so a burst of
// seeks builds up a backlog that plays out one seek at a time.
//
// All methods are safe for concurrent use, but none of them should be
// called from a listener callback except the non-blocking ones (Start,
// Pause, SeekTo, getters...). In particular, calling Prepare() or Release()
// from a listener deadlocks.
type Session struct {
	id      string
	factory EngineFactory
	device  VideoDevice
	relay   listenerRelay
	stats   statsCounter

	// lifecycle serializes engine creation and destruction, so a reset
	// engine is always gone before the next one is created
	lifecycle sync.Mutex

	// mutex guards everything below; armed is signaled whenever an engine
	// is installed or the session aborts
	mutex          sync.Mutex
	armed          *sync.Cond
	abort          bool
	released       bool
	state          SessionState
	engine         Engine
	prepare        *prepareCall
	seek           seekState
	options        []engineOption
	audioSessionID int
	loopDone       chan struct{}
	loopDead       bool
	loopErr        error
}

// pending blocking prepare
type prepareCall struct {
	done chan struct{}
	err  error
}

// seek coalescing state. deferred counts seeks posted as MsgRequestSeek that
// haven't reached the engine yet; parked holds the ones the dispatch loop
// already dequeued while another seek was in flight.
type seekState struct {
	inFlight bool
	target   int64
	deferred int
	parked   []int64
}

// options are remembered and replayed on every new engine
type engineOption struct {
	category OptionCategory
	key      string
	value    string
	intValue int64
	isInt    bool
}

// SessionOption configures a [Session] at creation time.
type SessionOption func(*Session)

// WithDevice sets the video device owned by the session. By default a
// [GPUDevice] is created.
func WithDevice(device VideoDevice) SessionOption {
	return func(s *Session) { s.device = device }
}

// WithListener registers the initial listener.
func WithListener(l Listener) SessionOption {
	return func(s *Session) { s.relay.set(l) }
}

var debugLogging atomic.Bool

// SetDebugLogging enables logging of every dispatched message.
func SetDebugLogging(enabled bool) { debugLogging.Store(enabled) }

// NewSession creates a session and starts its dispatch goroutine. If
// factory is nil, [DefaultEngineFactory] is used.
func NewSession(factory EngineFactory, opts ...SessionOption) *Session {
	if factory == nil {
		factory = DefaultEngineFactory
	}
	s := &Session{
		id:      uuid.NewString(),
		factory: factory,
		state:   Idle,
	}
	s.armed = sync.NewCond(&s.mutex)
	s.relay.faults = func() { s.stats.update(func(st *Stats) { st.ListenerFaults++ }) }
	for _, opt := range opts {
		opt(s)
	}
	if s.device == nil {
		s.device = NewGPUDevice()
	}

	s.mutex.Lock()
	s.noLockStartLoop()
	s.mutex.Unlock()
	return s
}

// ID returns the session identifier used in log messages.
func (s *Session) ID() string { return s.id }

// Device returns the video device owned by the session.
func (s *Session) Device() VideoDevice { return s.device }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats { return s.stats.snapshot() }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// LoopErr returns the error that terminated the dispatch loop, if any. It
// matches [ErrFatalLoopTermination]. Reset() clears it.
func (s *Session) LoopErr() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.loopErr
}

// SetListener registers the listener for session notifications. The
// previous listener is closed if it implements io.Closer. nil unregisters.
func (s *Session) SetListener(l Listener) {
	s.relay.set(l)
}

// --- data sources ---

// SetDataSource sets the uri to play. headerKeys and headerValues are sent
// as "Key: Value\r\n" pairs, in order, to network sources; both must have
// the same length (nil for no headers).
//
// Fails with [ErrInvalidArgument] on an empty uri, a reserved scheme or
// mismatched headers, in which case the engine is never contacted.
func (s *Session) SetDataSource(uri string, headerKeys, headerValues []string) error {
	if err := validateURI(uri); err != nil {
		return err
	}
	headers, err := BuildHeaders(headerKeys, headerValues)
	if err != nil {
		return err
	}
	return s.setDataSource(rewriteSchemeAlias(uri), 0, headers)
}

// SetDataSourceFD plays media from an open file descriptor, starting at the
// given byte offset. The descriptor is duplicated, so the caller may close
// its own copy once this returns.
func (s *Session) SetDataSourceFD(fd int, offset, length int64) error {
	if fd < 0 || offset < 0 || length < 0 {
		return fmt.Errorf("%w: fd=%d offset=%d length=%d", ErrInvalidArgument, fd, offset, length)
	}
	dup, err := dupDescriptor(fd)
	if err != nil {
		return fmt.Errorf("%w: duplicating fd %d: %v", ErrInvalidArgument, fd, err)
	}
	if err := s.setDataSource(descriptorURI(dup), offset, ""); err != nil {
		closeDescriptor(dup)
		return err
	}
	return nil
}

func (s *Session) setDataSource(uri string, offset int64, headers string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mutex.Lock()
	if s.released {
		s.mutex.Unlock()
		return ErrReleased
	}
	engine := s.engine
	options := slices.Clone(s.options)
	s.mutex.Unlock()

	if engine != nil {
		if err := engine.SetDataSource(uri, offset, headers); err != nil {
			return err
		}
		engine.SetVideoDevice(s.device)
		s.setState(Initialized)
		return nil
	}

	engine = s.factory()
	if engine == nil {
		return fmt.Errorf("%w: engine factory returned nil", ErrNotInitialized)
	}
	s.stats.update(func(st *Stats) { st.EnginesCreated++ })
	for _, opt := range options {
		opt.applyTo(engine)
	}
	if err := engine.SetDataSource(uri, offset, headers); err != nil {
		engine.Reset()
		return err
	}
	engine.SetVideoDevice(s.device)

	s.mutex.Lock()
	s.engine = engine
	s.state = Initialized
	s.mutex.Unlock()
	s.armed.Broadcast()
	return nil
}

// SetVideoSurface binds the surface the video device presents frames on.
// A nil target is ignored.
func (s *Session) SetVideoSurface(target Surface) error {
	if s.currentEngine() == nil {
		return ErrNotInitialized
	}
	if target == nil {
		return nil
	}
	if img, ok := target.(*ebiten.Image); ok && img == nil {
		return nil
	}
	s.device.SetSurface(target)
	return nil
}

// --- preparation ---

// Prepare prepares the data source for playback and blocks until the
// engine reports the outcome. It returns nil once prepared, the engine
// error (a [*StatusError]) on failure, or [ErrAborted] if the session is
// reset or released in the meantime.
func (s *Session) Prepare() error {
	call, err := s.beginPrepare()
	if err != nil {
		return err
	}
	<-call.done
	return call.err
}

// PrepareAsync starts preparing the data source and returns immediately.
// The outcome is notified with [EventPrepared] or [EventError].
func (s *Session) PrepareAsync() error {
	s.mutex.Lock()
	engine := s.engine
	if engine == nil {
		s.mutex.Unlock()
		return ErrNotInitialized
	}
	if s.loopDead {
		err := s.loopErr
		s.mutex.Unlock()
		return err
	}
	s.state = Preparing
	s.mutex.Unlock()
	return engine.PrepareAsync()
}

// beginPrepare registers a pending prepare and asks the engine to start
// preparing. It never blocks on the outcome.
func (s *Session) beginPrepare() (*prepareCall, error) {
	s.mutex.Lock()
	if s.released {
		s.mutex.Unlock()
		return nil, ErrReleased
	}
	engine := s.engine
	if engine == nil {
		s.mutex.Unlock()
		return nil, ErrNotInitialized
	}
	if s.prepare != nil {
		s.mutex.Unlock()
		return nil, ErrAlreadyInProgress
	}
	if s.loopDead {
		err := s.loopErr
		s.mutex.Unlock()
		return nil, err
	}
	call := &prepareCall{done: make(chan struct{})}
	s.prepare = call
	s.state = Preparing
	s.mutex.Unlock()

	if err := engine.PrepareAsync(); err != nil {
		s.mutex.Lock()
		if s.prepare == call {
			s.noLockResolvePrepare(err)
		}
		s.mutex.Unlock()
	}
	return call, nil
}

// preconditions: s.mutex is locked
func (s *Session) noLockResolvePrepare(err error) {
	call := s.prepare
	if call == nil {
		return
	}
	s.prepare = nil
	call.err = err
	close(call.done)

	if s.state == Preparing {
		if err == nil {
			s.state = Prepared
		} else {
			s.state = Initialized
		}
	}
}

// --- playback control ---

// Start starts or resumes playback. No-op without a data source.
func (s *Session) Start() { s.control(Engine.Start, Started) }

// Stop stops playback. No-op without a data source.
func (s *Session) Stop() { s.control(Engine.Stop, Stopped) }

// Pause pauses playback. No-op without a data source.
func (s *Session) Pause() { s.control(Engine.Pause, Paused) }

// Resume resumes paused playback. No-op without a data source.
func (s *Session) Resume() { s.control(Engine.Resume, Started) }

func (s *Session) control(cmd func(Engine), next SessionState) {
	engine := s.currentEngine()
	if engine == nil {
		return
	}
	cmd(engine)

	s.mutex.Lock()
	if s.engine == engine {
		s.state = next
	}
	s.mutex.Unlock()
}

// IsPlaying reports whether the engine is currently playing.
func (s *Session) IsPlaying() bool {
	if engine := s.currentEngine(); engine != nil {
		return engine.IsPlaying()
	}
	return false
}

// SeekTo moves playback to the given position in milliseconds. If a seek
// is already in flight, the request is deferred and issued once the
// previous ones complete, in call order.
func (s *Session) SeekTo(msec int64) {
	engine := s.currentEngine()
	if engine == nil {
		return
	}
	source := engine.MessageSource()

	s.mutex.Lock()
	if s.engine != engine {
		// reset meanwhile
		s.mutex.Unlock()
		return
	}
	if s.seek.inFlight || s.seek.deferred > 0 {
		s.seek.deferred++
		if source == nil {
			// no source to post through yet, the next completion issues it
			s.seek.parked = append(s.seek.parked, msec)
		}
		s.mutex.Unlock()
		s.stats.update(func(st *Stats) { st.SeeksDeferred++ })
		if source != nil {
			source.PostMessage(MsgRequestSeek, int(msec), 0, nil)
		}
		return
	}
	s.seek.inFlight = true
	s.seek.target = msec
	s.mutex.Unlock()

	s.issueSeek(engine, msec)
}

func (s *Session) issueSeek(engine Engine, msec int64) {
	s.stats.update(func(st *Stats) { st.SeeksIssued++ })
	engine.SeekTo(msec)
}

// CurrentPosition returns the playback position in milliseconds. While a
// seek is in flight, the seek target is reported instead of the engine
// position.
func (s *Session) CurrentPosition() int64 {
	s.mutex.Lock()
	engine := s.engine
	if engine == nil {
		s.mutex.Unlock()
		return 0
	}
	if s.seek.inFlight {
		target := s.seek.target
		s.mutex.Unlock()
		return target
	}
	s.mutex.Unlock()
	return engine.CurrentPosition()
}

// Duration returns the media duration in milliseconds, or -1 if unknown.
func (s *Session) Duration() int64 {
	if engine := s.currentEngine(); engine != nil {
		return engine.Duration()
	}
	return -1
}

// --- engine settings ---

// SetLooping sets whether playback restarts from the beginning at the end.
func (s *Session) SetLooping(looping bool) {
	if engine := s.currentEngine(); engine != nil {
		engine.SetLooping(looping)
	}
}

// IsLooping reports whether looping is enabled.
func (s *Session) IsLooping() bool {
	if engine := s.currentEngine(); engine != nil {
		return engine.IsLooping()
	}
	return false
}

// SetVolume sets the left and right channel volumes (0..1).
func (s *Session) SetVolume(left, right float32) {
	if engine := s.currentEngine(); engine != nil {
		engine.SetVolume(left, right)
	}
}

// SetMute mutes or unmutes audio.
func (s *Session) SetMute(mute bool) {
	if engine := s.currentEngine(); engine != nil {
		engine.SetMute(mute)
	}
}

// SetRate sets the playback speed (1 is normal speed).
func (s *Session) SetRate(rate float32) {
	if engine := s.currentEngine(); engine != nil {
		engine.SetRate(rate)
	}
}

// SetPitch sets the audio pitch (1 is unchanged).
func (s *Session) SetPitch(pitch float32) {
	if engine := s.currentEngine(); engine != nil {
		engine.SetPitch(pitch)
	}
}

// Rotate returns the video rotation in degrees.
func (s *Session) Rotate() int {
	if engine := s.currentEngine(); engine != nil {
		return engine.Rotate()
	}
	return 0
}

// VideoWidth returns the video width in pixels, 0 if unknown.
func (s *Session) VideoWidth() int {
	if engine := s.currentEngine(); engine != nil {
		return engine.VideoWidth()
	}
	return 0
}

// VideoHeight returns the video height in pixels, 0 if unknown.
func (s *Session) VideoHeight() int {
	if engine := s.currentEngine(); engine != nil {
		return engine.VideoHeight()
	}
	return 0
}

// SetOption sets a string engine option. Options are remembered and
// applied again to engines created after a Reset().
func (s *Session) SetOption(category OptionCategory, key, value string) {
	s.setOption(engineOption{category: category, key: key, value: value})
}

// SetOptionInt sets an integer engine option. See [Session.SetOption]().
func (s *Session) SetOptionInt(category OptionCategory, key string, value int64) {
	s.setOption(engineOption{category: category, key: key, intValue: value, isInt: true})
}

func (s *Session) setOption(opt engineOption) {
	// serialized with engine creation, so a new engine never misses it
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mutex.Lock()
	idx := slices.IndexFunc(s.options, func(o engineOption) bool {
		return o.category == opt.category && o.key == opt.key
	})
	if idx >= 0 {
		s.options[idx] = opt
	} else {
		s.options = append(s.options, opt)
	}
	engine := s.engine
	s.mutex.Unlock()

	if engine != nil {
		opt.applyTo(engine)
	}
}

func (o engineOption) applyTo(engine Engine) {
	if o.isInt {
		engine.SetOptionInt(o.category, o.key, o.intValue)
	} else {
		engine.SetOption(o.category, o.key, o.value)
	}
}

// AudioSessionID returns the audio session id set by the host.
func (s *Session) AudioSessionID() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.audioSessionID
}

// SetAudioSessionID sets the audio session id. Negative ids are rejected.
func (s *Session) SetAudioSessionID(id int) error {
	if id < 0 {
		return fmt.Errorf("%w: audio session id %d", ErrInvalidArgument, id)
	}
	s.mutex.Lock()
	s.audioSessionID = id
	s.mutex.Unlock()
	return nil
}

// --- teardown ---

// Reset drops the current engine (if any) together with any pending
// prepare and seek state, returning the session to [Idle]. A pending
// Prepare() call returns [ErrAborted]. If the dispatch loop had terminated
// on a fatal error, a new one is started.
func (s *Session) Reset() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.noLifecycleReset()
}

// preconditions: s.lifecycle is locked
func (s *Session) noLifecycleReset() {
	s.mutex.Lock()
	engine := s.engine
	s.engine = nil
	if s.prepare != nil {
		s.noLockResolvePrepare(ErrAborted)
	}
	s.seek = seekState{}
	if !s.released {
		s.state = Idle
	}
	if s.loopDead && !s.abort {
		s.loopDead = false
		s.loopErr = nil
		s.noLockStartLoop()
	}
	s.mutex.Unlock()

	if engine != nil {
		engine.Reset()
	}
}

// Release resets the session, joins the dispatch goroutine, terminates the
// video device and closes the listener. No notifications are delivered
// after Release returns. Calling it more than once is harmless.
func (s *Session) Release() {
	s.lifecycle.Lock()
	s.mutex.Lock()
	if s.released {
		s.mutex.Unlock()
		s.lifecycle.Unlock()
		return
	}
	s.released = true
	s.abort = true
	s.mutex.Unlock()

	s.noLifecycleReset()
	s.lifecycle.Unlock()

	s.mutex.Lock()
	s.state = Released
	done := s.loopDone
	s.mutex.Unlock()
	s.armed.Broadcast()
	<-done

	s.device.Terminate()
	s.relay.close()
}

// --- internal ---

func (s *Session) currentEngine() Engine {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.engine
}

func (s *Session) setState(state SessionState) {
	s.mutex.Lock()
	s.state = state
	s.mutex.Unlock()
}

// preconditions: s.mutex is locked
func (s *Session) noLockStartLoop() {
	done := make(chan struct{})
	s.loopDone = done
	go s.run(done)
}

func (s *Session) logf(format string, v ...any) {
	pkgLogger.Printf("[avctl %.8s] "+format, append([]any{s.id}, v...)...)
}

func (s *Session) debugf(format string, v ...any) {
	if debugLogging.Load() {
		s.logf(format, v...)
	}
}
