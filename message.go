package avctl

import "fmt"

// MessageKind identifies a message posted by an engine (or by the session
// itself, for deferred requests) on the engine's [MessageSource].
type MessageKind int

const (
	MsgFlush MessageKind = iota
	MsgError
	MsgPrepared
	MsgStarted
	MsgCompleted
	MsgOpenInput
	MsgFindStreamInfo
	MsgVideoSizeChanged
	MsgSARChanged
	MsgVideoRotationChanged
	MsgVideoRenderingStart
	MsgAudioRenderingStart
	MsgAudioStart
	MsgVideoStart
	MsgBufferingStart
	MsgBufferingEnd
	MsgBufferingUpdate
	MsgBufferingTimeUpdate
	MsgSeekComplete
	MsgPlaybackStateChanged
	MsgTimedText
	MsgCurrentPosition

	// deferred requests, posted by the session
	MsgRequestPrepare
	MsgRequestStart
	MsgRequestPause
	MsgRequestSeek
)

var messageKindNames = [...]string{
	MsgFlush:                "FLUSH",
	MsgError:                "ERROR",
	MsgPrepared:             "PREPARED",
	MsgStarted:              "STARTED",
	MsgCompleted:            "COMPLETED",
	MsgOpenInput:            "OPEN_INPUT",
	MsgFindStreamInfo:       "FIND_STREAM_INFO",
	MsgVideoSizeChanged:     "VIDEO_SIZE_CHANGED",
	MsgSARChanged:           "SAR_CHANGED",
	MsgVideoRotationChanged: "VIDEO_ROTATION_CHANGED",
	MsgVideoRenderingStart:  "VIDEO_RENDERING_START",
	MsgAudioRenderingStart:  "AUDIO_RENDERING_START",
	MsgAudioStart:           "AUDIO_START",
	MsgVideoStart:           "VIDEO_START",
	MsgBufferingStart:       "BUFFERING_START",
	MsgBufferingEnd:         "BUFFERING_END",
	MsgBufferingUpdate:      "BUFFERING_UPDATE",
	MsgBufferingTimeUpdate:  "BUFFERING_TIME_UPDATE",
	MsgSeekComplete:         "SEEK_COMPLETE",
	MsgPlaybackStateChanged: "PLAYBACK_STATE_CHANGED",
	MsgTimedText:            "TIMED_TEXT",
	MsgCurrentPosition:      "CURRENT_POSITION",
	MsgRequestPrepare:       "REQUEST_PREPARE",
	MsgRequestStart:         "REQUEST_START",
	MsgRequestPause:         "REQUEST_PAUSE",
	MsgRequestSeek:          "REQUEST_SEEK",
}

func (k MessageKind) String() string {
	if k >= 0 && int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return fmt.Sprintf("MSG(%d)", int(k))
}

// Message is one entry of a [MessageSource]. The payload, if any, is owned
// by the consumer while the message is being handled and released once
// handling completes.
type Message struct {
	Kind    MessageKind
	Arg1    int
	Arg2    int
	Payload []byte

	free func([]byte) // optional hook to hand the payload back to its producer
}

// Len returns the payload length.
func (m *Message) Len() int { return len(m.Payload) }

// release drops the payload. Safe to call more than once.
func (m *Message) release() {
	if m.Payload != nil && m.free != nil {
		m.free(m.Payload)
	}
	m.Payload = nil
	m.free = nil
}
