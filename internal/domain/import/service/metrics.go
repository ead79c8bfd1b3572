package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnparseable = "unparseable"
	OutcomeError       = "error"
)

// Metrics holds the ingestion counters. A nil *Metrics records nothing.
type Metrics struct {
	uploads    *prometheus.CounterVec
	rows       *prometheus.CounterVec
	commitRows *prometheus.CounterVec
	receipts   *prometheus.CounterVec
	extraction *prometheus.HistogramVec
}

// NewMetrics registers the ingestion metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "statement_uploads_total",
			Help:      "Statement uploads by outcome.",
		}, []string{"outcome"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "statement_rows_total",
			Help:      "Statement rows kept or skipped during extraction.",
		}, []string{"result"}),
		commitRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "commit_rows_total",
			Help:      "Rows inserted or failed at commit.",
		}, []string{"result"}),
		receipts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "receipt_ingests_total",
			Help:      "Receipt uploads by outcome.",
		}, []string{"outcome"}),
		extraction: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echo",
			Subsystem: "import",
			Name:      "extraction_duration_seconds",
			Help:      "Time spent extracting tables or text from a document.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
	}
}

func (m *Metrics) upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) statementRows(kept, skipped int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues("kept").Add(float64(kept))
	m.rows.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) committed(inserted, failed int) {
	if m == nil {
		return
	}
	m.commitRows.WithLabelValues("inserted").Add(float64(inserted))
	m.commitRows.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) receipt(outcome string) {
	if m == nil {
		return
	}
	m.receipts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeExtraction(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.extraction.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
