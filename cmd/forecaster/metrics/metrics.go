// Package metrics defines the Prometheus collectors of a forecasting batch.
//
// Collectors are registered on the given Registerer so tests and the
// textfile export can use a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the batch collectors.
type Metrics struct {
	// EntitiesTotal counts entity outcomes by status
	// (succeeded, failed, fallback, skipped).
	EntitiesTotal *prometheus.CounterVec

	// FitSeconds observes the duration of each entity fit.
	FitSeconds prometheus.Histogram

	// TransformLambda is the fitted Box-Cox lambda of the last batch.
	TransformLambda prometheus.Gauge

	// RowsPopulated is the number of future rows that received a forecast.
	RowsPopulated prometheus.Gauge

	// BatchSeconds is the wall time of the last batch.
	BatchSeconds prometheus.Gauge

	// LastSuccessTimestamp is the unix time the last batch completed.
	LastSuccessTimestamp prometheus.Gauge
}

// New creates and registers the collectors. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EntitiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "microcast_entities_total",
			Help: "Entities processed by outcome",
		}, []string{"status"}),
		FitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "microcast_entity_fit_seconds",
			Help:    "Time spent fitting and forecasting one entity",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		TransformLambda: factory.NewGauge(prometheus.GaugeOpts{
			Name: "microcast_transform_lambda",
			Help: "Box-Cox lambda fitted over the historical target column",
		}),
		RowsPopulated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "microcast_rows_populated",
			Help: "Future table rows populated with a forecast",
		}),
		BatchSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "microcast_batch_seconds",
			Help: "Wall time of the last forecasting batch",
		}),
		LastSuccessTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "microcast_last_success_timestamp_seconds",
			Help: "Unix time of the last completed batch",
		}),
	}
}

// WriteTextfile writes every metric of g to path in the node-exporter
// textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
