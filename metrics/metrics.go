package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RemoteFileHttpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "remote_file_http_requests_total",
		Help: "HTTP requests sent to remote files, by method and status code",
	},
	[]string{"method", "code"},
)

var RemoteFileFetchedBytesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "remote_file_fetched_bytes_total",
		Help: "Bytes received from remote files",
	},
	[]string{"file"},
)

var RemoteFileFetchLatencyHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "remote_file_fetch_latency_histogram",
		Help:    "Latency of a single remote range request",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	},
	[]string{"method"},
)

// ChunkLookupsTotal counts chunk cache lookups; result is "hit" or "miss".
var ChunkLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chunk_cache_lookups_total",
		Help: "Chunk cache lookups by result",
	},
	[]string{"result"},
)

// ReadHeadEventsTotal counts read-head decisions; event is "advance", "new" or "evict".
var ReadHeadEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "read_head_events_total",
		Help: "Read-head scheduler decisions",
	},
	[]string{"event"},
)

var OpenFiles = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "lazy_files_open",
		Help: "Number of file handles held by registries",
	},
)
