package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/config"
)

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{Store: "memory", StoreTimeout: time.Second})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "cassandra"})
	assert.Error(t, err)
}
