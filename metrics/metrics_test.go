package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RoundTrip(KindQuery)
	c.RoundTrip(KindQuery)
	c.RoundTrip(KindCommand)
	require.Equal(t, 2.0, testutil.ToFloat64(c.roundTrips.WithLabelValues(KindQuery)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.roundTrips.WithLabelValues(KindCommand)))

	c.Error(ErrorProtocol)
	require.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues(ErrorProtocol)))

	c.Poll(true)
	c.Poll(false)
	require.Equal(t, 2.0, testutil.ToFloat64(c.polls))
	require.Equal(t, 1.0, testutil.ToFloat64(c.emptyPolls))

	c.Samples(3)
	require.Equal(t, 3.0, testutil.ToFloat64(c.samples))

	c.Session(0.5)
	require.Equal(t, 1, testutil.CollectAndCount(c.sessions))
}

func TestCollector_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.RoundTrip(KindQuery)
		c.Error(ErrorConnection)
		c.Poll(true)
		c.Samples(1)
		c.Session(1)
	})
}
