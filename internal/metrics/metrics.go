package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lucidflow_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Graph metrics
	GraphMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_graph_mutations_total",
			Help: "Graph mutations by event kind",
		},
		[]string{"kind"},
	)

	SessionSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_session_saves_total",
			Help: "Session saves",
		},
		[]string{"backend", "result"}, // result: "ok" or "error"
	)

	SessionLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_session_loads_total",
			Help: "Session loads",
		},
		[]string{"backend", "result"}, // result: "ok", "empty" or "error"
	)

	DebouncedWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lucidflow_debounced_writes_total",
			Help: "Position/viewport updates coalesced into a pending save",
		},
	)

	// Context assembly metrics
	ContextBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_context_builds_total",
			Help: "Context assembly calls",
		},
		[]string{"result"},
	)

	ContextTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lucidflow_context_turns",
			Help:    "Number of turns in assembled contexts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_refreshes_total",
			Help: "Live node refreshes",
		},
		[]string{"subtype", "result"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_model_calls_total",
			Help: "Generative model calls",
		},
		[]string{"provider", "result"},
	)

	UIEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_ui_events_total",
			Help: "UI events relayed through the event bus",
		},
		[]string{"kind"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lucidflow_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lucidflow_store_latency_seconds",
			Help:    "Session store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)
)
