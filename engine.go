package avctl

// OptionCategory selects which layer of the engine an option applies to.
type OptionCategory int

const (
	OptFormat OptionCategory = 1 // demuxer / protocol options
	OptCodec  OptionCategory = 2 // decoder options
	OptSWS    OptionCategory = 3 // scaler options
	OptPlayer OptionCategory = 4 // engine behavior
)

func (c OptionCategory) String() string {
	switch c {
	case OptFormat:
		return "format"
	case OptCodec:
		return "codec"
	case OptSWS:
		return "sws"
	case OptPlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Engine is the capability contract a [Session] needs from a media engine.
// Decoding, A/V sync and frame delivery are the engine's business; the
// session only issues commands and consumes the engine's [MessageSource].
//
// Asynchronous outcomes (prepared, seek completed, errors...) must be
// reported as messages. Reset() must abort the message source so that a
// consumer blocked on GetMessage() returns.
type Engine interface {
	SetDataSource(uri string, offset int64, headers string) error
	SetVideoDevice(device VideoDevice)

	// Prepare opens the data source synchronously. PrepareAsync does the
	// same in the background. Both report the outcome with MsgPrepared or
	// MsgError.
	Prepare() error
	PrepareAsync() error

	Start()
	Stop()
	Pause()
	Resume()
	IsPlaying() bool

	// SeekTo requests a seek; completion is reported with MsgSeekComplete.
	SeekTo(msec int64)
	CurrentPosition() int64
	Duration() int64

	// Reset releases every resource tied to the current data source and
	// aborts the message source. The engine is not reused afterwards.
	Reset()

	SetLooping(looping bool)
	IsLooping() bool
	SetVolume(left, right float32)
	SetMute(mute bool)
	SetRate(rate float32)
	SetPitch(pitch float32)

	Rotate() int
	VideoWidth() int
	VideoHeight() int

	SetOption(category OptionCategory, key, value string)
	SetOptionInt(category OptionCategory, key string, value int64)

	MessageSource() MessageSource
}

// EngineFactory creates a fresh engine each time a session needs one.
type EngineFactory func() Engine

// DefaultEngineFactory creates [ReisenEngine] instances.
func DefaultEngineFactory() Engine { return NewReisenEngine() }
