package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики координатора заезда/выезда.
type SagaMetrics struct {
	// Счётчики операций по типу саги (entry/exit)
	sagaStarted     *prometheus.CounterVec
	sagaCompleted   *prometheus.CounterVec
	sagaFailed      *prometheus.CounterVec
	sagaCompensated *prometheus.CounterVec

	// Гистограммы времени выполнения
	sagaDuration *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec

	// Отдельный счётчик провалов best-effort освобождения места
	spotReleaseFailures prometheus.Counter

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для активных саг
	activeSagas prometheus.Gauge
}

// NewSagaMetrics создаёт новый экземпляр метрик саги.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pms_saga_started_total",
			Help: "Total number of saga operations started",
		}, []string{"saga"}),
		sagaCompleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pms_saga_completed_total",
			Help: "Total number of saga operations completed successfully",
		}, []string{"saga"}),
		sagaFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pms_saga_failed_total",
			Help: "Total number of saga operations failed",
		}, []string{"saga"}),
		sagaCompensated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pms_saga_compensated_total",
			Help: "Total number of saga operations rolled back by compensation",
		}, []string{"saga"}),
		sagaDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pms_saga_duration_seconds",
			Help:    "Duration of saga operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"saga"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pms_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		spotReleaseFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pms_spot_release_failures_total",
			Help: "Total number of failed best-effort spot releases after exit",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pms_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pms_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pms_active_sagas",
			Help: "Number of currently active saga operations",
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

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
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

// RecordSagaStarted увеличивает счётчик запущенных саг.
func (m *SagaMetrics) RecordSagaStarted(saga string) {
	m.sagaStarted.WithLabelValues(saga).Inc()
	m.activeSagas.Inc()
}

// RecordSagaCompleted увеличивает счётчик завершённых саг.
func (m *SagaMetrics) RecordSagaCompleted(saga string) {
	m.sagaCompleted.WithLabelValues(saga).Inc()
}

// RecordSagaFailed увеличивает счётчик неудачных саг.
func (m *SagaMetrics) RecordSagaFailed(saga string) {
	m.sagaFailed.WithLabelValues(saga).Inc()
}

// RecordSagaCompensated увеличивает счётчик саг, откатанных компенсацией.
func (m *SagaMetrics) RecordSagaCompensated(saga string) {
	m.sagaCompensated.WithLabelValues(saga).Inc()
}

// RecordSagaFinished уменьшает количество активных саг.
func (m *SagaMetrics) RecordSagaFinished() {
	m.activeSagas.Dec()
}

// RecordSagaDuration записывает время выполнения саги.
func (m *SagaMetrics) RecordSagaDuration(saga string, duration time.Duration) {
	m.sagaDuration.WithLabelValues(saga).Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *SagaMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordSpotReleaseFailure фиксирует провал best-effort освобождения места.
func (m *SagaMetrics) RecordSpotReleaseFailure() {
	m.spotReleaseFailures.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SagaMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
