// Package metrics exposes Prometheus metrics on a dedicated listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application counters.
type Metrics struct {
	TransactionsCreated  prometheus.Counter
	ArtifactsStored      prometheus.Counter
	ScreeningFailures    prometheus.Counter
	NotificationFailures prometheus.Counter
	QuotesServed         prometheus.Counter
}

func newMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransactionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Total number of purchase transactions created",
		}),
		ArtifactsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_stored_total",
			Help:      "Total number of encrypted evidence artifacts stored",
		}),
		ScreeningFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screening_failures_total",
			Help:      "Total number of failed sanctions screening calls",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Total number of failed receipt notifications",
		}),
		QuotesServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_served_total",
			Help:      "Total number of price quotes served",
		}),
	}
}

// MetricsServer serves the Prometheus scrape endpoint on its own address.
type MetricsServer struct {
	*Metrics

	srv *http.Server
}

// New creates a metrics server listening on addr with all application
// counters registered under the given namespace.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &MetricsServer{
		Metrics: newMetrics(namespace, reg),
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
