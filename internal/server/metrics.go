package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry            *prometheus.Registry
	feeResolutionsTotal *prometheus.CounterVec
	feeValidationsTotal *prometheus.CounterVec
	escrowCreatesTotal  *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	priceCacheTotal     *prometheus.CounterVec
}

func newMetricsRegistry() *metricsRegistry {
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowrails_fee_resolutions_total",
		Help: "Authoritative fee resolutions by outcome",
	}, []string{"outcome"})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowrails_fee_validations_total",
		Help: "Client fee validations by result",
	}, []string{"result"})

	creates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowrails_escrow_creations_total",
		Help: "Escrow creation submissions by status",
	}, []string{"status"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowrails_escrow_transitions_total",
		Help: "Escrow lifecycle transition submissions by operation and status",
	}, []string{"operation", "status"})

	priceCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowrails_price_cache_total",
		Help: "Price oracle cache lookups by result",
	}, []string{"result"})

	r := prometheus.NewRegistry()
	r.MustRegister(resolutions, validations, creates, transitions, priceCache)

	return &metricsRegistry{
		registry:            r,
		feeResolutionsTotal: resolutions,
		feeValidationsTotal: validations,
		escrowCreatesTotal:  creates,
		transitionsTotal:    transitions,
		priceCacheTotal:     priceCache,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incResolution(outcome string) {
	m.feeResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *metricsRegistry) incValidation(result string) {
	m.feeValidationsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incCreate(status string) {
	m.escrowCreatesTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incTransition(operation, status string) {
	m.transitionsTotal.WithLabelValues(operation, status).Inc()
}

func (m *metricsRegistry) incPriceCache(result string) {
	m.priceCacheTotal.WithLabelValues(result).Inc()
}
