package avctl

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// quiet warnings, and set before any session goroutine exists
	SetLogger(nil)
	os.Exit(m.Run())
}

var _ Engine = (*fakeEngine)(nil)

// fakeEngine records the commands it receives and reports asynchronous
// outcomes through a real MessageQueue, like a real engine would.
type fakeEngine struct {
	mutex sync.Mutex
	queue *MessageQueue
	// source overrides queue as the message source when set
	source MessageSource
	// detached engines report no message source at all
	detached bool

	calls    []string
	seeks    []int64
	options  []string
	uri      string
	offset   int64
	headers  string
	device   VideoDevice
	playing  bool
	looping  bool
	position int64
	duration int64
	resets   int

	setDataSourceErr error
	prepareAsyncErr  error
	// onPrepareAsync runs after PrepareAsync is recorded. By default the
	// engine reports MsgPrepared right away.
	onPrepareAsync func(e *fakeEngine)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		queue:    NewMessageQueue(),
		duration: 60_000,
		onPrepareAsync: func(e *fakeEngine) {
			e.post(MsgPrepared, 0, 0)
		},
	}
}

func (e *fakeEngine) record(call string) {
	e.mutex.Lock()
	e.calls = append(e.calls, call)
	e.mutex.Unlock()
}

func (e *fakeEngine) post(kind MessageKind, arg1, arg2 int) {
	e.queue.PostMessage(kind, arg1, arg2, nil)
}

func (e *fakeEngine) Calls() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Seeks() []int64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]int64(nil), e.seeks...)
}

func (e *fakeEngine) Options() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string(nil), e.options...)
}

func (e *fakeEngine) Source() (uri string, offset int64, headers string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.uri, e.offset, e.headers
}

func (e *fakeEngine) Device() VideoDevice {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.device
}

func (e *fakeEngine) Resets() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.resets
}

func (e *fakeEngine) SetDataSource(uri string, offset int64, headers string) error {
	e.record("SetDataSource")
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.uri, e.offset, e.headers = uri, offset, headers
	return e.setDataSourceErr
}

func (e *fakeEngine) SetVideoDevice(device VideoDevice) {
	e.record("SetVideoDevice")
	e.mutex.Lock()
	e.device = device
	e.mutex.Unlock()
}

func (e *fakeEngine) Prepare() error {
	e.record("Prepare")
	return nil
}

func (e *fakeEngine) PrepareAsync() error {
	e.record("PrepareAsync")
	e.mutex.Lock()
	err, hook := e.prepareAsyncErr, e.onPrepareAsync
	e.mutex.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(e)
	}
	return nil
}

func (e *fakeEngine) Start() {
	e.record("Start")
	e.mutex.Lock()
	e.playing = true
	e.mutex.Unlock()
}

func (e *fakeEngine) Stop() {
	e.record("Stop")
	e.mutex.Lock()
	e.playing = false
	e.mutex.Unlock()
}

func (e *fakeEngine) Pause() {
	e.record("Pause")
	e.mutex.Lock()
	e.playing = false
	e.mutex.Unlock()
}

func (e *fakeEngine) Resume() {
	e.record("Resume")
	e.mutex.Lock()
	e.playing = true
	e.mutex.Unlock()
}

func (e *fakeEngine) setDetached(detached bool) {
	e.mutex.Lock()
	e.detached = detached
	e.mutex.Unlock()
}

// startOnItsOwn mimics an engine starting playback without a Start call.
func (e *fakeEngine) startOnItsOwn() {
	e.mutex.Lock()
	e.playing = true
	e.mutex.Unlock()
	e.post(MsgStarted, 0, 0)
}

func (e *fakeEngine) IsPlaying() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.playing
}

// SeekTo only records the seek. Tests complete it with completeSeek().
func (e *fakeEngine) SeekTo(msec int64) {
	e.record(fmt.Sprintf("SeekTo(%d)", msec))
	e.mutex.Lock()
	e.seeks = append(e.seeks, msec)
	e.mutex.Unlock()
}

func (e *fakeEngine) completeSeek() {
	e.mutex.Lock()
	if n := len(e.seeks); n > 0 {
		e.position = e.seeks[n-1]
	}
	e.mutex.Unlock()
	e.post(MsgSeekComplete, 0, 0)
}

func (e *fakeEngine) CurrentPosition() int64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.position
}

func (e *fakeEngine) Duration() int64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.duration
}

func (e *fakeEngine) Reset() {
	e.record("Reset")
	e.mutex.Lock()
	e.resets++
	e.mutex.Unlock()
	e.queue.Abort()
}

func (e *fakeEngine) SetLooping(looping bool) {
	e.mutex.Lock()
	e.looping = looping
	e.mutex.Unlock()
}

func (e *fakeEngine) IsLooping() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.looping
}

func (e *fakeEngine) SetVolume(left, right float32) {
	e.record(fmt.Sprintf("SetVolume(%v,%v)", left, right))
}

func (e *fakeEngine) SetMute(mute bool) { e.record(fmt.Sprintf("SetMute(%v)", mute)) }
func (e *fakeEngine) SetRate(rate float32) { e.record(fmt.Sprintf("SetRate(%v)", rate)) }
func (e *fakeEngine) SetPitch(pitch float32) { e.record(fmt.Sprintf("SetPitch(%v)", pitch)) }
func (e *fakeEngine) Rotate() int { return 90 }
func (e *fakeEngine) VideoWidth() int { return 1920 }
func (e *fakeEngine) VideoHeight() int { return 1080 }

func (e *fakeEngine) SetOption(category OptionCategory, key, value string) {
	e.mutex.Lock()
	e.options = append(e.options, fmt.Sprintf("%s:%s=%s", category, key, value))
	e.mutex.Unlock()
}

func (e *fakeEngine) SetOptionInt(category OptionCategory, key string, value int64) {
	e.mutex.Lock()
	e.options = append(e.options, fmt.Sprintf("%s:%s=%d", category, key, value))
	e.mutex.Unlock()
}

func (e *fakeEngine) MessageSource() MessageSource {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.detached {
		return nil
	}
	if e.source != nil {
		return e.source
	}
	return e.queue
}

// fakeFactory hands out fake engines and keeps track of them.
type fakeFactory struct {
	mutex     sync.Mutex
	engines   []*fakeEngine
	configure func(*fakeEngine)
}

func (f *fakeFactory) New() Engine {
	e := newFakeEngine()
	if f.configure != nil {
		f.configure(e)
	}
	f.mutex.Lock()
	f.engines = append(f.engines, e)
	f.mutex.Unlock()
	return e
}

func (f *fakeFactory) Count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) Engine(i int) *fakeEngine {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.engines[i]
}

// fakeDevice is a VideoDevice that never touches the GPU.
type fakeDevice struct {
	mutex      sync.Mutex
	surface    Surface
	frames     int
	terminated bool
}

func (d *fakeDevice) RenderFrame(int, int, []byte) error {
	d.mutex.Lock()
	d.frames++
	d.mutex.Unlock()
	return nil
}

func (d *fakeDevice) SetSurface(target Surface) {
	d.mutex.Lock()
	d.surface = target
	d.mutex.Unlock()
}

func (d *fakeDevice) Terminate() {
	d.mutex.Lock()
	d.terminated = true
	d.mutex.Unlock()
}

func (d *fakeDevice) Terminated() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.terminated
}

func (d *fakeDevice) Surface() Surface {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.surface
}

// gatedSource is a MessageSource whose dequeue blocks until fail is
// closed, and fails from then on.
type gatedSource struct {
	fail chan struct{}
}

func newGatedSource() *gatedSource { return &gatedSource{fail: make(chan struct{})} }

func (g *gatedSource) PostMessage(MessageKind, int, int, []byte) {}
func (g *gatedSource) GetMessage() (Message, error) {
	<-g.fail
	return Message{}, fmt.Errorf("decoder thread crashed")
}

const waitTimeout = 2 * time.Second

// nextNotification waits for the next notification with the given event,
// skipping any other.
func nextNotification(t *testing.T, l *ChannelListener, ev Event) Notification {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case n, ok := <-l.Notifications():
			if !ok {
				require.FailNow(t, "listener closed", "waiting for %s", ev)
			}
			if n.Event == ev {
				return n
			}
		case <-deadline:
			require.FailNow(t, "timed out waiting for notification", "event %s", ev)
		}
	}
}

// drainNotifications collects every notification delivered within d.
func drainNotifications(l *ChannelListener, d time.Duration) []Notification {
	var out []Notification
	deadline := time.After(d)
	for {
		select {
		case n, ok := <-l.Notifications():
			if !ok {
				return out
			}
			out = append(out, n)
		case <-deadline:
			return out
		}
	}
}

// newTestSession creates a session wired to a fake factory, fake device and
// channel listener. It is released when the test ends.
func newTestSession(t *testing.T) (*Session, *fakeFactory, *fakeDevice, *ChannelListener) {
	t.Helper()
	factory := &fakeFactory{}
	device := &fakeDevice{}
	listener := NewChannelListener(256)
	s := NewSession(factory.New, WithDevice(device), WithListener(listener))
	t.Cleanup(s.Release)
	return s, factory, device, listener
}
