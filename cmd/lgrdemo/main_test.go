package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abyssdigger/lgrbus/consolewriter"
	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

func Test_loadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, defaultConfig(), cfg)
		assert.Equal(t, 3, cfg.File.Backups)
		assert.EqualValues(t, 1024, cfg.File.MaxSize)
		assert.Equal(t, os.FileMode(0o644), cfg.File.Mode)
	})
	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "demo.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
file:
  filename: /tmp/other.log
  backups: 7
console:
  colors: never
hec:
  baseURL: https://collector:8088
  token: abc
duration: 1s
`), 0o600))
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/other.log", cfg.File.Filename)
		assert.Equal(t, 7, cfg.File.Backups)
		assert.Equal(t, consolewriter.COLOR_NEVER, cfg.Console.Colors)
		assert.Equal(t, "https://collector:8088", cfg.HEC.BaseURL)
		assert.Equal(t, "abc", cfg.HEC.Token)
		assert.Equal(t, time.Second, cfg.Duration)
		assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout, "unset keys keep defaults")
	})
	t.Run("missing_file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Equal(t, apperrors.ErrConfigLoad, apperrors.Code(err))
	})
}

func Test_RootCmd_Run(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "test.txt")
	t.Setenv("LGRDEMO_COLORS", "never")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--log-file", logFile, "--duration", "20ms"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	prefix := ": TestFileWriter: " + logFile + ": "
	assert.Equal(t,
		"DEBUG: NumberListLogger"+prefix+"1, 2, 3\n"+
			"TEST: StringLogger"+prefix+"sample string - 1 - 2 - 3\n"+
			"INFO: StringLogger"+prefix+"exit: timeout\n",
		string(data))

	console := out.String()
	assert.Contains(t, console, "DEBUG: NumberListLogger: 1 2 3\n")
	assert.Contains(t, console, "TEST: StringLogger: sample string 1 2 3\n")
	assert.Contains(t, console, "INFO: StringLogger: exit: timeout\n")
	assert.NotContains(t, console, "\x1b[", "colors come from LGRDEMO_COLORS")
}
