package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvironmentString returns the named variable or the default when it is unset or empty
func EnvironmentString(env map[string]string, name string, defaultValue string) string {
	if value := env[name]; value != "" {
		return value
	}

	return defaultValue
}

func EnvironmentInt(env map[string]string, name string, defaultValue int) (int, error) {
	value := env[name]
	if value == "" {
		return defaultValue, nil
	}

	return strconv.Atoi(value)
}

// EnvironmentDuration accepts either a Go duration ("90s", "1h30m") or a bare number of seconds
func EnvironmentDuration(env map[string]string, name string, defaultValue time.Duration) (time.Duration, error) {
	value := env[name]
	if value == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return time.ParseDuration(value)
}

func EnvironmentBool(env map[string]string, name string, defaultValue bool) bool {
	value, ok := env[name]
	if !ok || value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
