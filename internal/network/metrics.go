package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики транспорта в Prometheus
type Metrics struct {
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	FramesSent       prometheus.Counter
	FramesReceived   prometheus.Counter
	FramesCompressed prometheus.Counter
	FrameErrors      prometheus.Counter
	Peers            prometheus.Gauge
	Timeouts         prometheus.Counter
}

// NewMetrics создаёт счётчики и регистрирует их в reg. С nil
// регистрацией счётчики работают, но никуда не экспортируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "bytes_sent_total",
			Help:      "Отправлено байт кадров.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "bytes_received_total",
			Help:      "Получено байт кадров.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "frames_sent_total",
			Help:      "Отправлено кадров.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "frames_received_total",
			Help:      "Получено кадров.",
		}),
		FramesCompressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "frames_compressed_total",
			Help:      "Кадров, сжатых zstd.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "frame_errors_total",
			Help:      "Кадров, которые не удалось прочитать.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "peers",
			Help:      "Подключённых пиров.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Subsystem: "network",
			Name:      "peer_timeouts_total",
			Help:      "Пиров, отключённых по таймауту.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BytesSent, m.BytesReceived, m.FramesSent, m.FramesReceived,
			m.FramesCompressed, m.FrameErrors, m.Peers, m.Timeouts)
	}
	return m
}
