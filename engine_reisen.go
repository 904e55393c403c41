package avctl

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erparts/reisen"
)

// Errors reported by [ReisenEngine] while opening media.
var (
	ErrNoVideo = errors.New("media doesn't include any video stream")
)

// Player options understood by [ReisenEngine] (category [OptPlayer]).
const (
	OptionStartOnPrepared = "start-on-prepared" // start playing as soon as prepared (0/1)
	OptionLoop            = "loop"              // 0 loops forever, 1 plays once
)

// lower bound for the render tick, for media reporting absurd frame rates
const minFrameInterval = 5 * time.Millisecond

var _ Engine = (*ReisenEngine)(nil)

// ReisenEngine is the default [Engine], decoding media with [reisen] and
// presenting frames on the session's [VideoDevice]. Audio, when present,
// is played through the ebitengine audio context, which is created on
// demand with the media sample rate.
//
// Playback is clock driven: a render goroutine ticks at the frame rate,
// computes the target position from the wall clock (scaled by the
// playback rate) and decodes forward until it catches up.
//
// Limitations: byte offsets and request headers can't be passed through
// reisen and are ignored, pitch changes are not supported, and audio is
// dropped while playing at a rate other than 1.
//
// [reisen]: https://github.com/erparts/reisen
type ReisenEngine struct {
	queue *MessageQueue

	mutex  sync.Mutex
	device VideoDevice

	// data source
	uri     string
	pipeFD  int
	network bool

	// underlying reisen objects, set once prepared
	media *reisen.Media
	video *reisen.VideoStream
	audio *reisen.AudioStream
	sink  *audioSink

	// static data
	duration      time.Duration
	frameDuration time.Duration
	width, height int

	// state variables
	preparing         bool
	prepared          bool
	closed            bool
	clock             clockState
	referenceTime     time.Time
	referencePosition time.Duration
	rate              float64
	pitch             float32
	looping           bool
	startOnPrepared   bool
	volume            float64
	muted             bool
	lastFrame         *reisen.VideoFrame
	renderingStarted  bool
	reportedSecond    time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReisenEngine creates an engine with no data source.
func NewReisenEngine() *ReisenEngine {
	return &ReisenEngine{
		queue:          NewMessageQueue(),
		pipeFD:         -1,
		rate:           1.0,
		pitch:          1.0,
		volume:         1.0,
		reportedSecond: -1,
		stopCh:         make(chan struct{}),
	}
}

func (e *ReisenEngine) MessageSource() MessageSource { return e.queue }

// --- data source and preparation ---

func (e *ReisenEngine) SetDataSource(uri string, offset int64, headers string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed || e.preparing || e.prepared {
		return &StatusError{Op: "setDataSource", Code: StatusInvalid}
	}

	e.uri = uri
	e.network = isNetworkURI(uri)
	if fd, ok := strings.CutPrefix(uri, pipeScheme); ok {
		if n, err := strconv.Atoi(fd); err == nil {
			e.pipeFD = n
		}
	}
	if offset > 0 {
		pkgLogger.Printf("WARNING: reisen engine can't start at byte offset %d; reading from the start", offset)
	}
	if headers != "" {
		pkgLogger.Printf("WARNING: reisen engine can't send request headers; ignoring them")
	}
	return nil
}

func (e *ReisenEngine) SetVideoDevice(device VideoDevice) {
	e.mutex.Lock()
	e.device = device
	e.mutex.Unlock()
}

func (e *ReisenEngine) Prepare() error {
	if err := e.beginPrepare(); err != nil {
		return err
	}
	return e.prepare()
}

func (e *ReisenEngine) PrepareAsync() error {
	if err := e.beginPrepare(); err != nil {
		return err
	}
	go func() { _ = e.prepare() }()
	return nil
}

func (e *ReisenEngine) beginPrepare() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed || e.uri == "" || e.preparing || e.prepared {
		return &StatusError{Op: "prepare", Code: StatusInvalid}
	}
	e.preparing = true
	return nil
}

// prepare opens the media and its streams, then starts the render
// goroutine. The outcome is always posted as MsgPrepared or MsgError.
func (e *ReisenEngine) prepare() error {
	e.queue.PostMessage(MsgOpenInput, 0, 0, nil)
	if e.network {
		if err := reisen.NetworkInitialize(); err != nil {
			return e.failPrepare(StatusIO, err)
		}
	}

	media, err := reisen.NewMedia(e.uri)
	if err != nil {
		if e.network {
			reisen.NetworkDeinitialize()
		}
		return e.failPrepare(StatusIO, err)
	}
	e.queue.PostMessage(MsgFindStreamInfo, 0, 0, nil)

	opened, err := openStreams(media, e.uri)
	if err != nil {
		media.Close()
		if e.network {
			reisen.NetworkDeinitialize()
		}
		code := StatusIO
		if errors.Is(err, ErrNoVideo) {
			code = StatusUnsupported
		}
		return e.failPrepare(code, err)
	}

	e.mutex.Lock()
	if e.closed {
		e.preparing = false
		e.noLockCloseDescriptor()
		e.mutex.Unlock()
		opened.close(media)
		media.Close()
		if e.network {
			reisen.NetworkDeinitialize()
		}
		return ErrAborted
	}
	e.media = media
	e.video = opened.video
	e.audio = opened.audio
	e.sink = opened.sink
	e.duration = opened.duration
	e.frameDuration = opened.frameDuration
	e.width, e.height = opened.video.Width(), opened.video.Height()
	if e.sink != nil {
		e.sink.SetVolume(e.volume)
		e.sink.SetMuted(e.muted)
	}
	e.preparing = false
	e.prepared = true
	e.clock = clockStopped
	startOnPrepared := e.startOnPrepared
	width, height := e.width, e.height
	e.wg.Add(1)
	go e.renderLoop(e.stopCh, max(e.frameDuration, minFrameInterval))
	e.mutex.Unlock()

	e.queue.PostMessage(MsgVideoSizeChanged, width, height, nil)
	e.queue.PostMessage(MsgPrepared, 0, 0, nil)
	if startOnPrepared {
		e.Start()
	}
	return nil
}

func (e *ReisenEngine) failPrepare(code int, err error) error {
	pkgLogger.Printf("WARNING: failed to open '%s': %v", filepath.Base(e.uri), err)
	e.mutex.Lock()
	e.preparing = false
	if e.closed {
		e.noLockCloseDescriptor()
	}
	e.mutex.Unlock()
	e.queue.PostMessage(MsgError, code, 0, nil)
	return &StatusError{Op: "prepare", Code: code}
}

type openedStreams struct {
	video         *reisen.VideoStream
	audio         *reisen.AudioStream
	sink          *audioSink
	duration      time.Duration
	frameDuration time.Duration
}

func openStreams(media *reisen.Media, uri string) (*openedStreams, error) {
	videoStreams := media.VideoStreams()
	if len(videoStreams) == 0 {
		return nil, ErrNoVideo
	}
	if len(videoStreams) > 1 {
		pkgLogger.Printf("WARNING: '%s' has multiple video streams; defaulting to the first", filepath.Base(uri))
	}
	opened := &openedStreams{video: videoStreams[0]}

	frNum, frDenom := opened.video.FrameRate()
	if frNum <= 0 || frDenom <= 0 {
		frNum, frDenom = 30, 1
	}
	opened.frameDuration = (time.Second * time.Duration(frDenom)) / time.Duration(frNum)
	duration, err := opened.video.Duration()
	if err != nil {
		return nil, err
	}
	opened.duration = duration

	if audioStreams := media.AudioStreams(); len(audioStreams) > 0 {
		if len(audioStreams) > 1 {
			pkgLogger.Printf("WARNING: '%s' has multiple audio streams; defaulting to the first", filepath.Base(uri))
		}
		ctx, err := ensureAudioContext(audioStreams[0].SampleRate())
		if err == nil {
			opened.sink, err = newAudioSink(ctx)
		}
		if err != nil {
			pkgLogger.Printf("WARNING: '%s' audio disabled: %v", filepath.Base(uri), err)
		} else {
			opened.audio = audioStreams[0]
			if audioDuration, err := opened.audio.Duration(); err == nil {
				opened.duration = max(opened.duration, audioDuration)
			}
		}
	}

	if err := media.OpenDecode(); err != nil {
		opened.close(nil)
		return nil, err
	}
	if err := opened.video.Open(); err != nil {
		opened.close(media)
		return nil, err
	}
	if opened.audio != nil {
		if err := opened.audio.Open(); err != nil {
			pkgLogger.Printf("WARNING: '%s' audio disabled: %v", filepath.Base(uri), err)
			_ = opened.sink.Close()
			opened.audio, opened.sink = nil, nil
		}
	}
	return opened, nil
}

// close undoes openStreams. media is nil if decoding was never opened.
func (o *openedStreams) close(media *reisen.Media) {
	if o.sink != nil {
		_ = o.sink.Close()
	}
	if media == nil {
		return
	}
	_ = o.video.Close()
	if o.audio != nil {
		_ = o.audio.Close()
	}
	_ = media.CloseDecode()
}

// --- playback control ---

func (e *ReisenEngine) Start() {
	e.mutex.Lock()
	if !e.prepared || e.closed {
		e.mutex.Unlock()
		pkgLogger.Printf("WARNING: start requested before the media was prepared")
		return
	}
	if e.clock == clockPlaying {
		e.mutex.Unlock()
		return
	}
	if e.clock == clockStopped && e.referencePosition >= e.duration {
		if err := e.noLockRewind(0); err != nil {
			e.mutex.Unlock()
			e.postError(err)
			return
		}
	}
	e.referenceTime = time.Now()
	e.clock = clockPlaying
	if e.sink != nil && e.rate == 1 {
		e.sink.Play()
	}
	e.mutex.Unlock()
	e.queue.PostMessage(MsgStarted, 0, 0, nil)
}

func (e *ReisenEngine) Resume() { e.Start() }

func (e *ReisenEngine) Pause() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.clock != clockPlaying {
		return
	}
	now := time.Now()
	e.referencePosition = e.noLockPosition(now)
	e.referenceTime = now
	e.clock = clockPaused
	if e.sink != nil {
		e.sink.Pause()
	}
}

func (e *ReisenEngine) Stop() {
	e.mutex.Lock()
	if !e.prepared || e.closed {
		e.mutex.Unlock()
		return
	}
	e.clock = clockStopped
	e.referenceTime = time.Time{}
	if e.sink != nil {
		e.sink.Pause()
	}
	err := e.noLockRewind(0)
	device := e.device
	e.mutex.Unlock()
	e.queue.Remove(MsgCurrentPosition)

	if err != nil {
		e.postError(err)
	}
	if device != nil {
		_ = device.RenderFrame(0, 0, nil)
	}
}

func (e *ReisenEngine) IsPlaying() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.clock == clockPlaying
}

// SeekTo rewinds the streams on a separate goroutine and posts
// MsgSeekComplete when done, even if the seek couldn't be performed.
func (e *ReisenEngine) SeekTo(msec int64) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return
	}
	// positions reported before the seek are stale
	e.queue.Remove(MsgCurrentPosition)
	if !e.prepared {
		pkgLogger.Printf("WARNING: seek to %dms requested before the media was prepared", msec)
		e.queue.PostMessage(MsgSeekComplete, 0, 0, nil)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		target := time.Duration(msec) * time.Millisecond

		e.mutex.Lock()
		var err error
		if !e.closed {
			target = min(max(target, 0), e.duration)
			err = e.noLockRewind(target)
			e.referencePosition = target
			e.referenceTime = time.Now()
		}
		e.mutex.Unlock()

		if err != nil {
			e.postError(err)
		}
		e.queue.PostMessage(MsgSeekComplete, 0, 0, nil)
	}()
}

func (e *ReisenEngine) CurrentPosition() int64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.noLockPosition(time.Now()).Milliseconds()
}

func (e *ReisenEngine) Duration() int64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.prepared {
		return -1
	}
	return e.duration.Milliseconds()
}

// Reset stops the render goroutine, closes the media and aborts the
// message queue. The engine can't be used afterwards.
func (e *ReisenEngine) Reset() {
	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return
	}
	e.closed = true
	e.clock = clockStopped
	close(e.stopCh)

	// release the mutex while waiting for goroutines to terminate
	e.mutex.Unlock()
	e.wg.Wait()
	e.mutex.Lock()

	if e.prepared {
		opened := openedStreams{video: e.video, audio: e.audio, sink: e.sink}
		opened.close(e.media)
		e.media.Close()
		if e.network {
			reisen.NetworkDeinitialize()
		}
		e.media, e.video, e.audio, e.sink = nil, nil, nil, nil
		e.prepared = false
	}
	// an in-flight prepare may still be reading the descriptor, so it
	// closes it once the open returns
	if !e.preparing {
		e.noLockCloseDescriptor()
	}
	e.lastFrame = nil
	e.mutex.Unlock()

	e.queue.Abort()
}

// preconditions: e.mutex is locked
func (e *ReisenEngine) noLockCloseDescriptor() {
	if e.pipeFD >= 0 {
		closeDescriptor(e.pipeFD)
		e.pipeFD = -1
	}
}

// --- settings ---

func (e *ReisenEngine) SetLooping(looping bool) {
	e.mutex.Lock()
	e.looping = looping
	e.mutex.Unlock()
}

func (e *ReisenEngine) IsLooping() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.looping
}

// SetVolume sets the output volume. ebitengine players have a single
// volume, so the channel average is used.
func (e *ReisenEngine) SetVolume(left, right float32) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.volume = float64(left+right) / 2
	if e.sink != nil {
		e.sink.SetVolume(e.volume)
	}
}

func (e *ReisenEngine) SetMute(mute bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.muted = mute
	if e.sink != nil {
		e.sink.SetMuted(mute)
	}
}

func (e *ReisenEngine) SetRate(rate float32) {
	if rate <= 0 {
		pkgLogger.Printf("WARNING: ignoring invalid playback rate %v", rate)
		return
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	now := time.Now()
	e.referencePosition = e.noLockPosition(now)
	e.referenceTime = now
	e.rate = float64(rate)

	if e.sink != nil {
		if e.rate != 1 {
			e.sink.Pause()
			e.sink.Flush()
		} else if e.clock == clockPlaying {
			e.sink.Play()
		}
	}
}

func (e *ReisenEngine) SetPitch(pitch float32) {
	e.mutex.Lock()
	e.pitch = pitch
	e.mutex.Unlock()
	if pitch != 1 {
		pkgLogger.Printf("WARNING: reisen engine doesn't support pitch changes; keeping the original pitch")
	}
}

func (e *ReisenEngine) Rotate() int { return 0 }

func (e *ReisenEngine) VideoWidth() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.width
}

func (e *ReisenEngine) VideoHeight() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.height
}

func (e *ReisenEngine) SetOption(category OptionCategory, key, value string) {
	if category == OptPlayer {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			e.SetOptionInt(category, key, n)
			return
		}
		if b, err := strconv.ParseBool(value); err == nil {
			e.SetOptionInt(category, key, boolToInt(b))
			return
		}
	}
	pkgLogger.Printf("WARNING: reisen engine ignores %s option %s=%q", category, key, value)
}

func (e *ReisenEngine) SetOptionInt(category OptionCategory, key string, value int64) {
	if category != OptPlayer {
		pkgLogger.Printf("WARNING: reisen engine ignores %s option %s=%d", category, key, value)
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	switch key {
	case OptionStartOnPrepared:
		e.startOnPrepared = value != 0
	case OptionLoop:
		e.looping = value != 1
	default:
		pkgLogger.Printf("WARNING: reisen engine ignores player option %s=%d", key, value)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// --- internal ---

func (e *ReisenEngine) postError(err error) {
	pkgLogger.Printf("WARNING: playback error on '%s': %v", filepath.Base(e.uri), err)
	e.queue.PostMessage(MsgError, StatusIO, 0, nil)
}

// preconditions: e.mutex is locked
func (e *ReisenEngine) noLockPosition(now time.Time) time.Duration {
	if e.clock != clockPlaying {
		return e.referencePosition
	}
	if e.referenceTime.After(now) {
		pkgLogger.Printf("WARNING: time inconsistency, video reference time after time.Now()")
		now = e.referenceTime
	}
	elapsed := time.Duration(float64(now.Sub(e.referenceTime)) * e.rate)
	return e.referencePosition + elapsed
}

// preconditions: e.mutex is locked and the media is prepared
func (e *ReisenEngine) noLockRewind(position time.Duration) error {
	if err := e.video.Rewind(position); err != nil {
		return err
	}
	if e.audio != nil {
		if err := e.audio.Rewind(position); err != nil {
			return err
		}
		e.sink.Flush()
	}
	e.lastFrame = nil
	e.referencePosition = position
	return nil
}

func (e *ReisenEngine) renderLoop(stopCh chan struct{}, interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if err := e.step(now); err != nil {
				e.mutex.Lock()
				e.clock = clockStopped
				if e.sink != nil {
					e.sink.Pause()
				}
				e.mutex.Unlock()
				e.postError(err)
			}
		}
	}
}

// step advances playback to the wall clock position at now and presents
// the matching frame.
func (e *ReisenEngine) step(now time.Time) error {
	e.mutex.Lock()
	if e.clock != clockPlaying || e.closed {
		e.mutex.Unlock()
		return nil
	}

	position := e.noLockPosition(now)
	ended := e.duration > 0 && position >= e.duration
	var updated bool
	if !ended {
		var err error
		updated, ended, err = e.noLockCatchUp(position)
		if err != nil {
			e.mutex.Unlock()
			return err
		}
	}
	if ended {
		return e.noUnlockEndOfMedia(now)
	}

	var frame []byte
	if updated {
		frame = e.lastFrame.Data()
	}
	firstFrame := updated && !e.renderingStarted
	if firstFrame {
		e.renderingStarted = true
	}
	second := position.Truncate(time.Second)
	report := second != e.reportedSecond
	e.reportedSecond = second
	device, width, height := e.device, e.width, e.height
	duration := e.duration
	e.mutex.Unlock()

	if frame != nil && device != nil {
		if err := device.RenderFrame(width, height, frame); err != nil {
			return err
		}
	}
	if firstFrame {
		e.queue.PostMessage(MsgVideoRenderingStart, 0, 0, nil)
	}
	if report {
		// only the latest position is worth delivering
		e.queue.Remove(MsgCurrentPosition)
		e.queue.PostMessage(MsgCurrentPosition, int(position.Milliseconds()), int(duration.Milliseconds()), nil)
	}
	return nil
}

// noUnlockEndOfMedia loops or completes playback. It releases the mutex.
//
// preconditions: e.mutex is locked
func (e *ReisenEngine) noUnlockEndOfMedia(now time.Time) error {
	if e.looping {
		err := e.noLockRewind(0)
		e.referenceTime = now
		e.mutex.Unlock()
		return err
	}

	e.clock = clockStopped
	e.referencePosition = e.duration
	e.referenceTime = time.Time{}
	if e.sink != nil {
		e.sink.Pause()
	}
	e.mutex.Unlock()
	e.queue.PostMessage(MsgCompleted, 0, 0, nil)
	return nil
}

// noLockCatchUp decodes video frames until the last one read matches the
// target position. Audio frames found on the way go to the sink.
//
// preconditions: e.mutex is locked
func (e *ReisenEngine) noLockCatchUp(position time.Duration) (updated, ended bool, err error) {
	var presOffset time.Duration
	if e.lastFrame != nil {
		presOffset, err = e.lastFrame.PresentationOffset()
		if err != nil {
			return false, false, err
		}
	}

	for e.lastFrame == nil || presOffset+e.frameDuration < position {
		frame, err := e.noLockReadVideoFrame()
		if err != nil {
			return updated, false, err
		}
		if frame == nil {
			return updated, true, nil
		}
		presOffset, err = frame.PresentationOffset()
		if err != nil {
			return updated, false, err
		}
		e.lastFrame = frame
		updated = true
	}
	return updated, false, nil
}

// preconditions: e.mutex is locked
func (e *ReisenEngine) noLockReadVideoFrame() (*reisen.VideoFrame, error) {
	// read packets until we come across the next video frame packet
	for {
		packet, packetFound, err := e.media.ReadPacket()
		if err != nil {
			return nil, err
		}
		if !packetFound {
			return nil, nil
		}

		switch packet.Type() {
		case reisen.StreamVideo:
			if packet.StreamIndex() != e.video.Index() {
				continue
			}
			frame, _, err := e.video.ReadVideoFrame()
			if err != nil {
				return nil, err
			}
			// a found frame can still be nil: that's a frame skip
			if frame != nil {
				return frame, nil
			}
		case reisen.StreamAudio:
			if e.audio == nil || packet.StreamIndex() != e.audio.Index() {
				continue
			}
			frame, _, err := e.audio.ReadAudioFrame()
			if err != nil {
				return nil, err
			}
			if frame != nil && e.rate == 1 {
				e.sink.Write(frame.Data())
			}
		default:
			// ignore other packets
		}
	}
}

func isNetworkURI(uri string) bool {
	scheme, _, ok := strings.Cut(uri, "://")
	return ok && !strings.EqualFold(scheme, "file")
}
