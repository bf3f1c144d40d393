package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "pages_routed_total",
			Help:      "Pages analyzed, labeled by analysis mode and selected route",
		},
		[]string{"mode", "route"},
	)

	analysisLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flashdeck",
			Name:      "page_analysis_duration_seconds",
			Help:      "Duration of per-page analysis by mode",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ocrFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "ocr_fallbacks_total",
			Help:      "OCR failures recovered with a fallback value, by stage",
		},
		[]string{"stage"},
	)

	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "provider_requests_total",
			Help:      "Total provider requests by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flashdeck",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests by provider and model",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events by provider, model and action",
		},
		[]string{"provider", "model", "action"},
	)

	cardsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "cards_extracted_total",
			Help:      "Flashcards parsed from model responses, by route",
		},
		[]string{"route"},
	)

	emptyResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "empty_responses_total",
			Help:      "Pages that produced no cards, by route and whether the backend failed",
		},
		[]string{"route", "failed"},
	)

	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flashdeck",
			Name:      "jobs_total",
			Help:      "Finished deck jobs by result",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(pagesRouted, analysisLatency, ocrFallbacks, providerReqs, providerLatency,
		breakerEvents, cardsExtracted, emptyResponses, jobs)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObservePage(mode, route string, dur time.Duration) {
	pagesRouted.WithLabelValues(mode, route).Inc()
	analysisLatency.WithLabelValues(mode).Observe(dur.Seconds())
}

func IncOCRFallback(stage string) { ocrFallbacks.WithLabelValues(stage).Inc() }

func ObserveProvider(provider, model, result string, dur time.Duration) {
	providerReqs.WithLabelValues(provider, model, result).Inc()
	providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func BreakerOpened(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "opened").Inc()
}
func BreakerClosed(provider, model string) {
	breakerEvents.WithLabelValues(provider, model, "closed").Inc()
}

// AddCards counts parsed cards; a page without cards is tracked separately.
func AddCards(route string, n int, failed bool) {
	if n == 0 {
		emptyResponses.WithLabelValues(route, strconv.FormatBool(failed)).Inc()
		return
	}
	cardsExtracted.WithLabelValues(route).Add(float64(n))
}

func IncJob(result string) { jobs.WithLabelValues(result).Inc() }
