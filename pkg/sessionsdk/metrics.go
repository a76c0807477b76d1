package sessionsdk

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes recorded on dealerdesk_session_refresh_total.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeReused  = "reused"
	outcomeAbsent  = "absent"
)

type metrics struct {
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	retries         prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerdesk_session_refresh_total",
				Help: "Refresh episodes by outcome",
			},
			[]string{"outcome"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealerdesk_session_refresh_duration_seconds",
				Help:    "Duration of calls to the refresh endpoint in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dealerdesk_session_retries_total",
				Help: "Requests resent after a 401 and a successful refresh",
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.refreshDuration, err = register(reg, m.refreshDuration); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}

	return m, nil
}

// register adds c to reg, handing back the already registered collector when
// another client on the same registry got there first.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
