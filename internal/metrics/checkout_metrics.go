package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики конвейера checkout.
type CheckoutMetrics struct {
	// Счётчики операций
	intentsOpened      prometheus.Counter
	ordersFinalized    prometheus.Counter
	verificationFailed prometheus.Counter
	stockConflicts     prometheus.Counter
	amountMismatches   prometheus.Counter
	retriesServed      prometheus.Counter

	// Гистограммы времени выполнения
	finalizeDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для активных finalize
	activeFinalizes prometheus.Gauge
}

// NewCheckoutMetrics создаёт новый экземпляр метрик checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		intentsOpened: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_intents_total",
			Help: "Total number of payment intents opened",
		}),
		ordersFinalized: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_finalized_total",
			Help: "Total number of orders finalized successfully",
		}),
		verificationFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_verification_failed_total",
			Help: "Total number of payment proofs rejected by signature verification",
		}),
		stockConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_stock_conflicts_total",
			Help: "Total number of post-capture stock conflicts requiring reconciliation",
		}),
		amountMismatches: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_amount_mismatch_total",
			Help: "Total number of captured amounts diverging from the server quote",
		}),
		retriesServed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_checkout_retries_served_total",
			Help: "Total number of finalize retries answered from the idempotency record",
		}),
		finalizeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "piecom_checkout_finalize_duration_seconds",
			Help:    "Duration of finalize operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "piecom_checkout_step_duration_seconds",
			Help:    "Duration of individual finalize steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "piecom_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		activeFinalizes: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "piecom_checkout_active_finalizes",
			Help: "Number of finalize operations currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordIntentOpened увеличивает счётчик созданных intent.
func (m *CheckoutMetrics) RecordIntentOpened() {
	m.intentsOpened.Inc()
}

// RecordOrderFinalized увеличивает счётчик успешных finalize.
func (m *CheckoutMetrics) RecordOrderFinalized() {
	m.ordersFinalized.Inc()
}

// RecordVerificationFailed увеличивает счётчик отклонённых подписей.
func (m *CheckoutMetrics) RecordVerificationFailed() {
	m.verificationFailed.Inc()
}

// RecordStockConflict увеличивает счётчик post-capture конфликтов остатка.
func (m *CheckoutMetrics) RecordStockConflict() {
	m.stockConflicts.Inc()
}

// RecordAmountMismatch увеличивает счётчик расхождений суммы.
func (m *CheckoutMetrics) RecordAmountMismatch() {
	m.amountMismatches.Inc()
}

// RecordRetryServed увеличивает счётчик повторов, отданных из idempotency.
func (m *CheckoutMetrics) RecordRetryServed() {
	m.retriesServed.Inc()
}

// RecordFinalizeStarted увеличивает количество активных finalize.
func (m *CheckoutMetrics) RecordFinalizeStarted() {
	m.activeFinalizes.Inc()
}

// RecordFinalizeFinished уменьшает количество активных finalize.
func (m *CheckoutMetrics) RecordFinalizeFinished() {
	m.activeFinalizes.Dec()
}

// RecordFinalizeDuration записывает время выполнения finalize.
func (m *CheckoutMetrics) RecordFinalizeDuration(duration time.Duration) {
	m.finalizeDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага finalize.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
