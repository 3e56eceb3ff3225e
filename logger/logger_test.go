package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerIsNeverNil(t *testing.T) {
	// The package-level default must be usable before Initialize.
	require.NotNil(t, Logger)
	Logger.Debugw("no-op logger accepts calls", "key", "value")
}

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
	require.NotNil(t, Logger)
}

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
	require.NotNil(t, Logger)
}

func TestSetVerbose(t *testing.T) {
	require.NoError(t, Initialize(false))
	require.NoError(t, SetVerbose())
	require.NotNil(t, Logger)
}

func TestSetVerboseJSON(t *testing.T) {
	require.NoError(t, Initialize(true))
	require.NoError(t, SetVerbose())
	require.NotNil(t, Logger)
}
