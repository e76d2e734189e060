package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("nil receiver is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.IncEvent("text", "advanced")
			m.IncFinalized("vehicle")
			m.SetLedgerLastID(3)
			m.AddSessionsExpired(2)
		})
	})

	t.Run("registers on a private registry", func(t *testing.T) {
		m := New(prometheus.NewRegistry())
		m.IncFinalized("guest")
		m.IncFinalized("guest")
		m.SetLedgerLastID(7)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsFinalized.WithLabelValues("guest")))
		assert.Equal(t, 7.0, testutil.ToFloat64(m.LedgerLastID))
	})
}
