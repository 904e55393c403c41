package avctl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOptions(t *testing.T) {
	path := writeProfile(t, "profile.toml", `
[format]
rtsp_transport = "tcp"
probesize = 32768

[codec]
skip_loop_filter = 48

[sws]
sws_flags = "bicubic"

[player]
start-on-prepared = true
loop = 0
framedrop = 1.5
`)

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, Options{
		{Category: OptFormat, Key: "probesize", IntValue: 32768, IsInt: true},
		{Category: OptFormat, Key: "rtsp_transport", Value: "tcp"},
		{Category: OptCodec, Key: "skip_loop_filter", IntValue: 48, IsInt: true},
		{Category: OptSWS, Key: "sws_flags", Value: "bicubic"},
		{Category: OptPlayer, Key: "framedrop", Value: "1.5"},
		{Category: OptPlayer, Key: "loop", IntValue: 0, IsInt: true},
		{Category: OptPlayer, Key: "start-on-prepared", IntValue: 1, IsInt: true},
	}, opts)
}

func TestLoadOptions_LaterFilesOverride(t *testing.T) {
	base := writeProfile(t, "base.toml", "[player]\nloop = 0\n[format]\nrtsp_transport = \"udp\"\n")
	override := writeProfile(t, "override.toml", "[format]\nrtsp_transport = \"tcp\"\n")
	missing := filepath.Join(t.TempDir(), "missing.toml")

	opts, err := LoadOptions(base, missing, override)
	require.NoError(t, err)
	assert.Equal(t, Options{
		{Category: OptFormat, Key: "rtsp_transport", Value: "tcp"},
		{Category: OptPlayer, Key: "loop", IntValue: 0, IsInt: true},
	}, opts)
}

func TestLoadOptions_Errors(t *testing.T) {
	broken := writeProfile(t, "broken.toml", "[format\nrtsp_transport = ")
	_, err := LoadOptions(broken)
	assert.Error(t, err)

	unsupported := writeProfile(t, "array.toml", "[codec]\nthreads = [1, 2]\n")
	_, err = LoadOptions(unsupported)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOptions_Apply(t *testing.T) {
	s, factory, _, _ := newTestSession(t)
	opts := Options{
		{Category: OptFormat, Key: "rtsp_transport", Value: "tcp"},
		{Category: OptPlayer, Key: "loop", IntValue: 0, IsInt: true},
	}
	opts.Apply(s)

	require.NoError(t, s.SetDataSource("rtsp://cam/1", nil, nil))
	assert.Equal(t, []string{"format:rtsp_transport=tcp", "player:loop=0"}, factory.Engine(0).Options())
}
