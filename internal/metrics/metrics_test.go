package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pseudocoder/inkwell/internal/channel"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
	"github.com/pseudocoder/inkwell/internal/guard"
)

const endpoint = "ws://h/ws/s-1/session"

// Compile-time checks that the collectors plug into both observer hooks.
var (
	_ channel.Observer = (*Collectors)(nil)
	_ guard.Observer   = (*Collectors)(nil)
)

func newTestCollectors(t *testing.T) (*Collectors, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestStatusChanged_OneHotGauge(t *testing.T) {
	c, _ := newTestCollectors(t)

	c.StatusChanged(channel.StatusEvent{Endpoint: endpoint, Status: channel.Connecting})
	c.StatusChanged(channel.StatusEvent{Endpoint: endpoint, Status: channel.Connected})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChannelStatus.WithLabelValues(endpoint, "connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ChannelStatus.WithLabelValues(endpoint, "connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ChannelStatus.WithLabelValues(endpoint, "reconnecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.ChannelStatus.WithLabelValues(endpoint, "disconnected")))
}

func TestReconnectScheduled(t *testing.T) {
	c, reg := newTestCollectors(t)

	c.ReconnectScheduled(endpoint, 1, 800*time.Millisecond)
	c.ReconnectScheduled(endpoint, 2, 1200*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Reconnects.WithLabelValues(endpoint)))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "inkwell_channel_retry_delay_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(2), h.GetSampleCount())
		assert.InDelta(t, 2.0, h.GetSampleSum(), 1e-9)
	}
	assert.True(t, found, "retry delay histogram not gathered")
}

func TestProtocolError_LabelledByCode(t *testing.T) {
	c, _ := newTestCollectors(t)

	c.ProtocolError(endpoint, apperrors.UnknownType("mystery"))
	c.ProtocolError(endpoint, apperrors.DecodeFailed("invalid JSON frame", nil))
	c.ProtocolError(endpoint, apperrors.UnknownType("other"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ProtocolErrors.WithLabelValues(endpoint, apperrors.CodeProtocolUnknownType)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ProtocolErrors.WithLabelValues(endpoint, apperrors.CodeProtocolDecodeFailed)))
}

func TestInvocation(t *testing.T) {
	c, _ := newTestCollectors(t)

	c.Invocation("feedback", guard.ResultExecuted)
	c.Invocation("feedback", guard.ResultSuppressed)
	c.Invocation("feedback", guard.ResultSuppressed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.GuardInvocations.WithLabelValues("feedback", "executed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.GuardInvocations.WithLabelValues("feedback", "suppressed")))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandler_ServesMetrics(t *testing.T) {
	c, reg := newTestCollectors(t)
	c.Invocation("save", guard.ResultFailed)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `inkwell_guard_invocations_total{operation="save",result="failed"} 1`)
}
