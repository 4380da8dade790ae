package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentDuration(t *testing.T) {
	env := map[string]string{
		"SECONDS":  "45",
		"DURATION": "1h30m",
		"BROKEN":   "soon",
	}

	value, err := EnvironmentDuration(env, "SECONDS", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, value)

	value, err = EnvironmentDuration(env, "DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, value)

	value, err = EnvironmentDuration(env, "MISSING", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, value)

	_, err = EnvironmentDuration(env, "BROKEN", time.Minute)
	assert.Error(t, err)
}

func TestEnvironmentBool(t *testing.T) {
	env := map[string]string{"ON": "Yes", "OFF": "false"}

	assert.True(t, EnvironmentBool(env, "ON", false))
	assert.False(t, EnvironmentBool(env, "OFF", true))
	assert.True(t, EnvironmentBool(env, "MISSING", true))
}
