package avctl

import (
	"errors"

	"github.com/erparts/reisen"
	"github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	ErrNoAudio            = errors.New("media contains no audio")
	ErrNonNilAudioContext = errors.New("audio context already initialized")
	ErrBadSampleRate      = errors.New("media audio stream and audio context sample rates don't match")
)

// CreateAudioContextForMedia creates an ebitengine audio context matching
// the sample rate of the given media. Engines create one on demand, but
// hosts playing several files in sequence may want to pick the rate
// themselves before the first session starts.
func CreateAudioContextForMedia(uri string) error {
	if audio.CurrentContext() != nil {
		return ErrNonNilAudioContext
	}

	sampleRate, err := GetMediaAudioSampleRate(uri)
	if err != nil {
		return err
	}
	_ = audio.NewContext(sampleRate)
	return nil
}

// If the media has no audio, [ErrNoAudio] will be returned.
func GetMediaAudioSampleRate(uri string) (int, error) {
	container, err := reisen.NewMedia(uri)
	if err != nil {
		return 0, err
	}
	defer container.Close()

	audioStreams := container.AudioStreams()
	if len(audioStreams) == 0 {
		return 0, ErrNoAudio
	}
	return audioStreams[0].SampleRate(), nil
}

// ensureAudioContext returns the process audio context, creating it with
// the given sample rate if it doesn't exist yet. ebitengine only allows one
// context per process, so a mismatching rate is an error.
func ensureAudioContext(sampleRate int) (*audio.Context, error) {
	ctx := audio.CurrentContext()
	if ctx == nil {
		return audio.NewContext(sampleRate), nil
	}
	if ctx.SampleRate() != sampleRate {
		pkgLogger.Printf("WARNING: context sample rate = %d, media audio sample rate = %d", ctx.SampleRate(), sampleRate)
		return nil, ErrBadSampleRate
	}
	return ctx, nil
}
