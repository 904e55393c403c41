package avctl

import (
	"io"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

// player buffer size of 40ms should be ok on desktops. 70ms should be
// ok on wasm/web. for microcontrollers, you might have to experiment.
const playerBufferSize time.Duration = 200 * time.Millisecond

// upper bound for decoded audio waiting to be played. older samples are
// discarded first when the decoder runs ahead.
const maxBufferedAudio = 2 * time.Second

// audioSink feeds decoded L16 stereo samples to an ebitengine audio player.
// Decoding happens on the engine's render goroutine, so the sink only
// buffers: when the buffer runs dry, silence is served instead of io.EOF,
// which keeps the player alive across pauses, seeks and loops.
type audioSink struct {
	mutex    sync.Mutex
	player   *audio.Player
	buffer   []byte
	maxBytes int
	volume   float64
	muted    bool
	closed   bool
}

func newAudioSink(ctx *audio.Context) (*audioSink, error) {
	sink := &audioSink{
		buffer:   make([]byte, 0, 16*1024),
		maxBytes: bytesForDuration(ctx.SampleRate(), maxBufferedAudio),
		volume:   1.0,
	}
	player, err := ctx.NewPlayer(&struct{ io.Reader }{sink})
	if err != nil {
		return nil, err
	}
	player.SetBufferSize(playerBufferSize)
	sink.player = player
	return sink, nil
}

// 16 bits, 2 channels
func bytesForDuration(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate)*int64(d)/int64(time.Second)) * 4
}

// Write appends decoded samples. Partial samples are not expected.
func (s *audioSink) Write(data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return
	}
	s.buffer = append(s.buffer, data...)
	if excess := len(s.buffer) - s.maxBytes; excess > 0 {
		excess = (excess + 3) &^ 3
		n := copy(s.buffer, s.buffer[excess:])
		s.buffer = s.buffer[:n]
	}
}

// Flush discards all buffered samples.
func (s *audioSink) Flush() {
	s.mutex.Lock()
	s.buffer = s.buffer[:0]
	s.mutex.Unlock()
}

func (s *audioSink) Buffered() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.buffer)
}

func (s *audioSink) Play() {
	if s.player != nil {
		s.player.Play()
	}
}

func (s *audioSink) Pause() {
	if s.player != nil {
		s.player.Pause()
	}
}

func (s *audioSink) SetVolume(volume float64) {
	s.mutex.Lock()
	s.volume = volume
	s.noLockApplyVolume()
	s.mutex.Unlock()
}

func (s *audioSink) SetMuted(muted bool) {
	s.mutex.Lock()
	s.muted = muted
	s.noLockApplyVolume()
	s.mutex.Unlock()
}

// preconditions: s.mutex is locked
func (s *audioSink) noLockApplyVolume() {
	if s.player == nil {
		return
	}
	if s.muted {
		s.player.SetVolume(0)
	} else {
		s.player.SetVolume(s.volume)
	}
}

// Close stops the player. Later writes are ignored.
func (s *audioSink) Close() error {
	s.mutex.Lock()
	s.closed = true
	s.buffer = s.buffer[:0]
	player := s.player
	s.player = nil
	s.mutex.Unlock()

	if player == nil {
		return nil
	}
	player.Pause()
	return player.Close()
}

// Read implements io.Reader for the ebitengine player. It never returns
// io.EOF: missing samples are served as silence.
func (s *audioSink) Read(buffer []byte) (int, error) {
	// clamp to previous multiple of 4 (for f32 audio it would have to be mult of 8)
	buffer = buffer[:len(buffer)&(math.MaxInt-0b11)]

	s.mutex.Lock()
	n := copy(buffer, s.buffer)
	rest := copy(s.buffer, s.buffer[n:])
	s.buffer = s.buffer[:rest]
	s.mutex.Unlock()

	clear(buffer[n:])
	return len(buffer), nil
}
