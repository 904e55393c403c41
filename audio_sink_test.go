package avctl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sinks built without a player only exercise the buffering side
func newBufferOnlySink(maxBytes int) *audioSink {
	return &audioSink{maxBytes: maxBytes, volume: 1}
}

func TestAudioSink_ReadServesBufferThenSilence(t *testing.T) {
	sink := newBufferOnlySink(1024)
	sink.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	buf := make([]byte, 12)
	n, err := sink.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}, buf)
	assert.Zero(t, sink.Buffered())
}

func TestAudioSink_ReadClampsPartialSamples(t *testing.T) {
	sink := newBufferOnlySink(1024)
	sink.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	buf := make([]byte, 7)
	n, err := sink.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, sink.Buffered())
}

func TestAudioSink_WriteDropsOldestWhenFull(t *testing.T) {
	sink := newBufferOnlySink(8)
	sink.Write([]byte{1, 1, 1, 1, 2, 2, 2, 2})
	sink.Write([]byte{3, 3, 3, 3})
	assert.Equal(t, 8, sink.Buffered())

	buf := make([]byte, 8)
	_, err := sink.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2, 2, 2, 3, 3, 3, 3}, buf)
}

func TestAudioSink_FlushAndClose(t *testing.T) {
	sink := newBufferOnlySink(64)
	sink.Write([]byte{1, 2, 3, 4})
	sink.Flush()
	assert.Zero(t, sink.Buffered())

	require.NoError(t, sink.Close())
	sink.Write([]byte{1, 2, 3, 4})
	assert.Zero(t, sink.Buffered(), "writes after close are ignored")

	// volume changes without a player are harmless
	sink.SetVolume(0.5)
	sink.SetMuted(true)
	sink.Play()
	sink.Pause()
}

func TestBytesForDuration(t *testing.T) {
	assert.Equal(t, 44100*4, bytesForDuration(44100, time.Second))
	assert.Equal(t, 4800*4, bytesForDuration(48000, 100*time.Millisecond))
}
