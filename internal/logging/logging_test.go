package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Options{Level: "WARN", Out: &buf})
	defer closer()

	log.Info().Msg("hidden")
	log.Warn().Str("tag", "categories").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"tag":"categories"`)
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Options{Level: "chatty", Out: &buf})
	defer closer()

	log.Debug().Msg("debug")
	log.Info().Msg("info")
	assert.NotContains(t, buf.String(), `"message":"debug"`)
	assert.Contains(t, buf.String(), `"message":"info"`)
	assert.Contains(t, buf.String(), "unknown log level")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phimhub.log")
	var buf bytes.Buffer
	log, closer := New(Options{Level: "debug", File: path, Out: &buf})

	log.Debug().Msg("to both")
	require.NoError(t, closer())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to both")
	assert.Contains(t, buf.String(), "to both")
}
