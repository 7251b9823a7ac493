package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestEmailsAreLoggedWithoutVerbose(t *testing.T) {
	app, mail, err := newLoggers(false)
	require.NoError(t, err)
	assert.False(t, app.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, app.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, mail.Core().Enabled(zapcore.InfoLevel))

	app, _, err = newLoggers(true)
	require.NoError(t, err)
	assert.True(t, app.Core().Enabled(zapcore.DebugLevel))
}
