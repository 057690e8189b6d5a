package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the resilience layer.
type Metrics struct {
	RateLimitChecks   *prometheus.CounterVec
	RateLimitDenied   *prometheus.CounterVec
	RateLimitFailOpen prometheus.Counter
	CheckLatency      prometheus.Histogram

	ErrorsClassified *prometheus.CounterVec
	ThreatEscalated  *prometheus.CounterVec

	CircuitTransitions    *prometheus.CounterVec
	CircuitShortCircuited *prometheus.CounterVec

	RecoveryAttempts    *prometheus.CounterVec
	RecoveryOutcomes    *prometheus.CounterVec
	FallbackCacheHits   prometheus.Counter
	FallbackCacheMisses prometheus.Counter
}

// New creates and registers all instruments with the default registry.
func New() *Metrics {
	return &Metrics{
		RateLimitChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_ratelimit_checks_total",
			Help: "Rate limit evaluations, labeled by tier and outcome",
		}, []string{"tier", "outcome"}),
		RateLimitDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_ratelimit_denied_total",
			Help: "Denied requests labeled by tier and tripping algorithm",
		}, []string{"tier", "algorithm"}),
		RateLimitFailOpen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hauler_ratelimit_fail_open_total",
			Help: "Checks allowed because the counter store was unreachable",
		}),
		CheckLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hauler_ratelimit_check_seconds",
			Help:    "Latency of rate limit checks in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ErrorsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_errors_classified_total",
			Help: "Classified failures labeled by category and business impact",
		}, []string{"category", "impact"}),
		ThreatEscalated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_threat_escalations_total",
			Help: "Security threat escalations labeled by resulting level",
		}, []string{"level"}),
		CircuitTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_circuit_transitions_total",
			Help: "Circuit state transitions labeled by dependency and new state",
		}, []string{"dependency", "state"}),
		CircuitShortCircuited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_circuit_short_circuited_total",
			Help: "Calls rejected without reaching the dependency",
		}, []string{"dependency"}),
		RecoveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_recovery_attempts_total",
			Help: "Recovery strategy invocations labeled by strategy",
		}, []string{"strategy"}),
		RecoveryOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hauler_recovery_outcomes_total",
			Help: "Terminal recovery outcomes labeled by result",
		}, []string{"result"}),
		FallbackCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hauler_fallback_cache_hits_total",
			Help: "Fallback cache lookups that produced a stale payload",
		}),
		FallbackCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hauler_fallback_cache_misses_total",
			Help: "Fallback cache lookups with nothing usable",
		}),
	}
}

func (m *Metrics) ObserveCheck(tier string, allowed bool, seconds float64) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.RateLimitChecks.WithLabelValues(tier, outcome).Inc()
	m.CheckLatency.Observe(seconds)
}

func (m *Metrics) IncDenied(tier, algorithm string) {
	m.RateLimitDenied.WithLabelValues(tier, algorithm).Inc()
}

func (m *Metrics) IncClassified(category, impact string) {
	m.ErrorsClassified.WithLabelValues(category, impact).Inc()
}

func (m *Metrics) IncCircuitTransition(dependency, state string) {
	m.CircuitTransitions.WithLabelValues(dependency, state).Inc()
}

func (m *Metrics) IncRecoveryAttempt(strategy string) {
	m.RecoveryAttempts.WithLabelValues(strategy).Inc()
}

func (m *Metrics) IncRecoveryOutcome(result string) {
	m.RecoveryOutcomes.WithLabelValues(result).Inc()
}
