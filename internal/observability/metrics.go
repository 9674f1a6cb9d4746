package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queueSize    *prometheus.GaugeVec
	enqueueTotal *prometheus.CounterVec
	dequeueTotal *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	turnTotal          *prometheus.CounterVec
	turnDepth          prometheus.Histogram
	protocolViolations prometheus.Counter
	diceRolledTotal    prometheus.Counter
	gameResetsTotal    prometheus.Counter

	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	synthesisDuration   prometheus.Histogram
	synthesisFailures   prometheus.Counter
	transcriptionTotal  *prometheus.CounterVec
	deliveriesTotal     *prometheus.CounterVec
	artifactsSweptTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queueSize: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "queue_size",
					Help: "Current queue size by lane.",
				},
				[]string{"lane"},
			),
			enqueueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "enqueue_total",
					Help: "Total enqueue operations by lane.",
				},
				[]string{"lane"},
			),
			dequeueTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dequeue_total",
					Help: "Total dequeue/completion operations by lane and status.",
				},
				[]string{"lane", "status"},
			),
			taskDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "task_duration_seconds",
					Help:    "Task execution duration in seconds by lane.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"lane"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current known session count.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "game_turn_total",
					Help: "Total inbound turns by event kind and outcome.",
				},
				[]string{"event", "outcome"},
			),
			turnDepth: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "game_turn_depth",
					Help:    "Number of generation steps per turn chain.",
					Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
				},
			),
			protocolViolations: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "game_protocol_violations_total",
					Help: "Total backend replies rejected by the phrase parser.",
				},
			),
			diceRolledTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "game_dice_rolled_total",
					Help: "Total d20 dice rolled on behalf of players.",
				},
			),
			gameResetsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "game_resets_total",
					Help: "Total transcript resets to the seed.",
				},
			),
			generationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "generation_total",
					Help: "Total generation calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			generationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "generation_duration_seconds",
					Help:    "Generation call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			synthesisDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "speech_synthesis_duration_seconds",
					Help:    "Speech synthesis duration in seconds per voice job.",
					Buckets: prometheus.DefBuckets,
				},
			),
			synthesisFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "speech_synthesis_failures_total",
					Help: "Total failed speech synthesis jobs.",
				},
			),
			transcriptionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "speech_transcription_total",
					Help: "Total voice note transcriptions by status.",
				},
				[]string{"status"},
			),
			deliveriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reply_deliveries_total",
					Help: "Total reply messages sent by kind and status.",
				},
				[]string{"kind", "status"},
			),
			artifactsSweptTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "reply_artifacts_swept_total",
					Help: "Total orphaned audio artifacts removed by the sweeper.",
				},
			),
		}

		prometheus.MustRegister(
			m.queueSize,
			m.enqueueTotal,
			m.dequeueTotal,
			m.taskDuration,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.turnTotal,
			m.turnDepth,
			m.protocolViolations,
			m.diceRolledTotal,
			m.gameResetsTotal,
			m.generationTotal,
			m.generationDuration,
			m.synthesisDuration,
			m.synthesisFailures,
			m.transcriptionTotal,
			m.deliveriesTotal,
			m.artifactsSweptTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordQueueEnqueue(lane string, queueSize int) {
	m := getMetrics()
	m.enqueueTotal.WithLabelValues(lane).Inc()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetQueueSize(lane string, queueSize int) {
	m := getMetrics()
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func RecordQueueCompletion(lane string, duration time.Duration, success bool, queueSize int) {
	m := getMetrics()
	m.dequeueTotal.WithLabelValues(lane, statusLabel(success)).Inc()
	m.taskDuration.WithLabelValues(lane).Observe(duration.Seconds())
	m.queueSize.WithLabelValues(lane).Set(float64(queueSize))
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	m := getMetrics()
	m.sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	m := getMetrics()
	m.sessionSaveDuration.Observe(duration.Seconds())
}

// RecordTurn records the outcome of one inbound event's turn chain.
func RecordTurn(event, outcome string, depth int) {
	m := getMetrics()
	m.turnTotal.WithLabelValues(event, outcome).Inc()
	if depth > 0 {
		m.turnDepth.Observe(float64(depth))
	}
}

func RecordProtocolViolation() {
	getMetrics().protocolViolations.Inc()
}

func RecordDiceRolled(n int) {
	getMetrics().diceRolledTotal.Add(float64(n))
}

func RecordGameReset() {
	getMetrics().gameResetsTotal.Inc()
}

func RecordGeneration(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.generationTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordSynthesis(duration time.Duration, success bool) {
	m := getMetrics()
	m.synthesisDuration.Observe(duration.Seconds())
	if !success {
		m.synthesisFailures.Inc()
	}
}

func RecordTranscription(success bool) {
	getMetrics().transcriptionTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordDelivery counts one outbound message; kind is "text", "voice" or "fallback".
func RecordDelivery(kind string, success bool) {
	getMetrics().deliveriesTotal.WithLabelValues(kind, statusLabel(success)).Inc()
}

func RecordArtifactsSwept(n int) {
	getMetrics().artifactsSweptTotal.Add(float64(n))
}
