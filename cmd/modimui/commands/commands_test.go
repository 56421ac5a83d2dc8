package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/eachlabs/modimui/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintFrames(t *testing.T) {
	var out bytes.Buffer
	err := printFrames(&out, []string{
		"display_text_default_Hello_there",
		"display_button_yes$Yes",
		"display_video_x",
	}, false)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, `set_text id="text_default" value="Hello_there"`)
	assert.Contains(t, got, `add_button id="yes" label="Yes"`)
	assert.Contains(t, got, "ignored: unknown command")
}

func TestPrintFrames_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printFrames(&out, []string{"display_text_attentionscore_42", "remove_buttons"}, true))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "set_attention_score", got[0]["kind"])
	assert.Equal(t, map[string]any{"score": float64(42)}, got[0]["command"])
	assert.Equal(t, "clear_buttons", got[1]["kind"])
}

func TestSetConfigValue(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, setConfigValue(cfg, "server.host", "10.0.0.5"))
	require.NoError(t, setConfigValue(cfg, "server.port", "9200"))
	require.NoError(t, setConfigValue(cfg, "ui.elements", "text_default, text_title"))
	require.NoError(t, setConfigValue(cfg, "ui.simple", "true"))

	assert.Equal(t, "10.0.0.5", getConfigValue(cfg, "server.host"))
	assert.Equal(t, 9200, getConfigValue(cfg, "server.port"))
	assert.Equal(t, []string{"text_default", "text_title"}, getConfigValue(cfg, "ui.elements"))
	assert.Equal(t, true, getConfigValue(cfg, "ui.simple"))

	assert.Error(t, setConfigValue(cfg, "server.port", "high"))
	assert.Error(t, setConfigValue(cfg, "server", "x"))
	assert.Error(t, setConfigValue(cfg, "robot.name", "pepper"))
	assert.Nil(t, getConfigValue(cfg, "robot.name"))
}

func TestSetConfigFile_KeepsEnvOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("MODIMUI_PORT", "9999")
	t.Setenv("MODIMUI_LOG_LEVEL", "debug")

	require.NoError(t, setConfigFile(path, "server.host", "10.0.0.5"))
	require.NoError(t, setConfigFile(path, "logging.file", "~/modimui.log"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	saved := string(data)
	assert.Contains(t, saved, "10.0.0.5")
	assert.Contains(t, saved, "~/modimui.log")
	assert.NotContains(t, saved, "9999")
	assert.NotContains(t, saved, "debug")

	// The overrides still apply when the file is loaded.
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
}
