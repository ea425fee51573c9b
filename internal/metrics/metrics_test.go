package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.SetUsersOnline(3)
	c.Event("join")
	c.Event("join")
	c.Event("search")
	c.Persisted()
	c.PersistFailed()
	c.BotReplied()
	c.Limited()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Connections))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.UsersOnline))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Events.WithLabelValues("join")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MessagesPersisted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PersistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BotReplies))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RateLimited))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ConnectionOpened()
		c.ConnectionClosed()
		c.SetUsersOnline(1)
		c.Event("join")
		c.Persisted()
		c.PersistFailed()
		c.BotReplied()
		c.Limited()
	})
}
