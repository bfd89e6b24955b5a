package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "nftregistry/pkg/domain-errors"
)

// Metrics provides observability for the registry module.
// Every operation is counted by result (ok or the error code) and timed.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	NFTsCreated       prometheus.Counter
	SeriesCreated     prometheus.Counter
	SeriesFinished    prometheus.Counter
}

const resultOK = "ok"

// New registers the registry metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nftregistry_operations_total",
			Help: "Registry operations by operation and result code",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nftregistry_operation_duration_seconds",
			Help:    "Duration of registry operations including the store transaction",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		NFTsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftregistry_nfts_created_total",
			Help: "Total number of NFTs created",
		}),
		SeriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftregistry_series_created_total",
			Help: "Total number of series created, explicitly or by the first member",
		}),
		SeriesFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftregistry_series_finished_total",
			Help: "Total number of series transitioned to completed",
		}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
// Call with time.Now() taken at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = string(dErrors.CodeOf(err))
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementNFTsCreated() {
	m.NFTsCreated.Inc()
}

func (m *Metrics) IncrementSeriesCreated() {
	m.SeriesCreated.Inc()
}

func (m *Metrics) IncrementSeriesFinished() {
	m.SeriesFinished.Inc()
}
