package avctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionState_String(t *testing.T) {
	states := map[SessionState]string{
		Idle:        "Idle",
		Initialized: "Initialized",
		Preparing:   "Preparing",
		Prepared:    "Prepared",
		Started:     "Started",
		Paused:      "Paused",
		Stopped:     "Stopped",
		Released:    "Released",
	}
	for state, name := range states {
		assert.Equal(t, name, state.String())
	}
	assert.Equal(t, "Unknown", SessionState(200).String())
}

func TestClockState_String(t *testing.T) {
	assert.Equal(t, "Stopped", clockStopped.String())
	assert.Equal(t, "Playing", clockPlaying.String())
	assert.Equal(t, "Paused", clockPaused.String())
	assert.Equal(t, "Unknown", clockState(9).String())
}

func TestOptionCategory_String(t *testing.T) {
	assert.Equal(t, "format", OptFormat.String())
	assert.Equal(t, "codec", OptCodec.String())
	assert.Equal(t, "sws", OptSWS.String())
	assert.Equal(t, "player", OptPlayer.String())
	assert.Equal(t, "unknown", OptionCategory(0).String())
}
