package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision paths reported on the decisions counter
const (
	PathCache   = "cache"
	PathRule    = "rule"
	PathNoJudge = "no_judge"
	PathJudge   = "judge"
	PathError   = "error"
)

// Recorder holds the verification collectors. Collectors are registered on the
// registerer passed to NewRecorder so tests can use an isolated registry.
type Recorder struct {
	decisions   *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	judgeScore  *prometheus.HistogramVec
	latency     *prometheus.HistogramVec
	ledgerErrs  prometheus.Counter
}

// NewRecorder registers the verification collectors on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hvt",
			Subsystem: "verify",
			Name:      "decisions_total",
			Help:      "Verification decisions by task, path and verdict",
		}, []string{"task", "path", "verdict"}),
		cacheLookup: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hvt",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome (hit, miss, corrupt)",
		}, []string{"outcome"}),
		judgeScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hvt",
			Subsystem: "judge",
			Name:      "raw_score",
			Help:      "Distribution of raw judge scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}, []string{"task", "model"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hvt",
			Subsystem: "verify",
			Name:      "latency_seconds",
			Help:      "Verification latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"task", "path"}),
		ledgerErrs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hvt",
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Decision ledger write failures",
		}),
	}
}

// Default is registered on the prometheus default registry and served by /metrics
var Default = NewRecorder(prometheus.DefaultRegisterer)

// Decision records a finished verification
func (r *Recorder) Decision(task, path, verdict string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(task, path, verdict).Inc()
	r.latency.WithLabelValues(task, path).Observe(elapsed.Seconds())
}

// CacheLookup records a cache hit, miss or corrupt entry
func (r *Recorder) CacheLookup(outcome string) {
	if r == nil {
		return
	}
	r.cacheLookup.WithLabelValues(outcome).Inc()
}

// JudgeScore records a raw judge score
func (r *Recorder) JudgeScore(task, model string, score float64) {
	if r == nil {
		return
	}
	r.judgeScore.WithLabelValues(task, model).Observe(score)
}

// LedgerError counts a failed ledger write
func (r *Recorder) LedgerError() {
	if r == nil {
		return
	}
	r.ledgerErrs.Inc()
}
