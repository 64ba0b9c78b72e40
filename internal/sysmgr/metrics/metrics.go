// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     metrics
// Description: Prometheus collector for the system manager and the HTTP
//              handler exposing it
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msto63/mSYS/pkg/core/logging"
)

const metricsNamespace = "msys_sysmgr"

// Collector is a prometheus.Collector for the system manager
type Collector struct {
	systemState   *prometheus.GaugeVec
	closeRounds   *prometheus.CounterVec
	unresponsive  *prometheus.CounterVec
	killed        *prometheus.CounterVec
	cpuLevel      prometheus.Gauge
	registered    *prometheus.GaugeVec
	startDuration *prometheus.HistogramVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		systemState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "system_state",
				Help:      "1 for the current lifecycle state, 0 otherwise.",
			}, []string{"state"},
		),
		closeRounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "close_rounds_total",
				Help:      "The number of completed shutdown handshake rounds.",
			}, []string{"scenario"},
		),
		unresponsive: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "unresponsive_services_total",
				Help:      "The number of services that did not acknowledge a close notice.",
			}, []string{"service"},
		),
		killed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "killed_services_total",
				Help:      "The number of services killed after a failed graceful exit.",
			}, []string{"service"},
		),
		cpuLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "cpu_frequency_level",
				Help:      "The effective CPU frequency level.",
			},
		),
		registered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "registered_services",
				Help:      "The number of registered services per collection.",
			}, []string{"collection"},
		),
		startDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "service_start_seconds",
				Help:      "The time taken by a service to answer its start request.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
			}, []string{"service"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.systemState.Describe(ch)
	c.closeRounds.Describe(ch)
	c.unresponsive.Describe(ch)
	c.killed.Describe(ch)
	c.cpuLevel.Describe(ch)
	c.registered.Describe(ch)
	c.startDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.systemState.Collect(ch)
	c.closeRounds.Collect(ch)
	c.unresponsive.Collect(ch)
	c.killed.Collect(ch)
	c.cpuLevel.Collect(ch)
	c.registered.Collect(ch)
	c.startDuration.Collect(ch)
}

// SetState marks current as the only active state among all
func (c *Collector) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		c.systemState.WithLabelValues(s).Set(v)
	}
}

// CloseRound records a finished handshake round
func (c *Collector) CloseRound(scenario string, unresponsive, killed []string) {
	c.closeRounds.WithLabelValues(scenario).Inc()
	for _, name := range unresponsive {
		c.unresponsive.WithLabelValues(name).Inc()
	}
	for _, name := range killed {
		c.killed.WithLabelValues(name).Inc()
	}
}

// SetCPULevel records the effective CPU frequency level
func (c *Collector) SetCPULevel(level int) {
	c.cpuLevel.Set(float64(level))
}

// SetRegistered records the size of a registry collection
func (c *Collector) SetRegistered(collection string, n int) {
	c.registered.WithLabelValues(collection).Set(float64(n))
}

// ObserveStart records how long a service took to start
func (c *Collector) ObserveStart(service string, d time.Duration) {
	c.startDuration.WithLabelValues(service).Observe(d.Seconds())
}

// Handler returns an HTTP handler serving the registry
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr under /metrics until ctx is done
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
