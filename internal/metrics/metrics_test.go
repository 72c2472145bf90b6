package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageAppended("channel", false)
	m.MessageAppended("channel", false)
	m.MessageAppended("direct", true)
	m.StorageRetry("append")
	m.ReadAdvanced()
	m.ObserveHTTP("GET", "/x", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.appends.WithLabelValues("channel", "timeline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.appends.WithLabelValues("direct", "thread")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageRetries.WithLabelValues("append")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readAdvances))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageAppended("channel", false)
	m.StorageFailure("x", "timeout")
	m.ObserveHTTP("GET", "/", 200, 0)
}
