package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderEventsTotal counts order lifecycle changes by event.
	OrderEventsTotal *prometheus.CounterVec
	// PaymentRejectedTotal counts payments refused during re-validation, by reason.
	PaymentRejectedTotal *prometheus.CounterVec
	// KPIRunsTotal counts per-user commission calculations by outcome.
	KPIRunsTotal *prometheus.CounterVec
	// KPIRunDuration records full calculator runs in milliseconds.
	KPIRunDuration prometheus.Histogram
	// DashboardCacheTotal counts KPI dashboard cache lookups by result.
	DashboardCacheTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrderEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_events_total",
			Help:      "Count of order lifecycle changes.",
		}, []string{"event"})
		PaymentRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_payment_rejected_total",
			Help:      "Count of payments refused by re-validation.",
		}, []string{"reason"})
		KPIRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kpi_commission_runs_total",
			Help:      "Count of per-user commission calculations by outcome.",
		}, []string{"result"})
		KPIRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kpi_calculation_duration_ms",
			Help:      "Latency of monthly commission calculations in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})
		DashboardCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kpi_dashboard_cache_total",
			Help:      "KPI dashboard cache lookups by result.",
		}, []string{"result"})

		OrderEventsTotal = register(reg, OrderEventsTotal)
		PaymentRejectedTotal = register(reg, PaymentRejectedTotal)
		KPIRunsTotal = register(reg, KPIRunsTotal)
		KPIRunDuration = register(reg, KPIRunDuration)
		DashboardCacheTotal = register(reg, DashboardCacheTotal)
	})
}

// CountOrderEvent increments the order lifecycle counter when metrics are registered.
func CountOrderEvent(event string) {
	if OrderEventsTotal != nil {
		OrderEventsTotal.WithLabelValues(event).Inc()
	}
}

// CountPaymentRejected increments the payment rejection counter when metrics are registered.
func CountPaymentRejected(reason string) {
	if PaymentRejectedTotal != nil {
		PaymentRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// CountKPIRun increments the KPI run counter when metrics are registered.
func CountKPIRun(result string) {
	if KPIRunsTotal != nil {
		KPIRunsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveKPIRun records a calculator run duration when metrics are registered.
func ObserveKPIRun(ms float64) {
	if KPIRunDuration != nil {
		KPIRunDuration.Observe(ms)
	}
}

// CountDashboardCache increments the dashboard cache counter when metrics are registered.
func CountDashboardCache(result string) {
	if DashboardCacheTotal != nil {
		DashboardCacheTotal.WithLabelValues(result).Inc()
	}
}
