package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	roomsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_live",
			Help: "Количество комнат с участниками в памяти",
		},
	)

	rosterBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roster_broadcasts_total",
			Help: "Количество разосланных снимков состава комнаты",
		},
	)

	signalsRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_relayed_total",
			Help: "Количество пересланных сигнальных сообщений",
		},
		[]string{"result"},
	)

	persistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persist_failures_total",
			Help: "Ошибки фоновой записи в хранилище комнат",
		},
		[]string{"task"},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetRoomsLive(count int) {
	roomsLive.Set(float64(count))
}

func IncrementRosterBroadcasts() {
	rosterBroadcastsTotal.Inc()
}

func RecordSignalRelay(result string) {
	signalsRelayedTotal.WithLabelValues(result).Inc()
}

func IncrementPersistFailures(task string) {
	persistFailuresTotal.WithLabelValues(task).Inc()
}
