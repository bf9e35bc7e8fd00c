package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики сервера в Prometheus
type Metrics struct {
	BlocksSent      prometheus.Counter
	BlockBytesSent  prometheus.Counter
	ExcessGotBlocks prometheus.Counter
	EmergeQueue     prometheus.Gauge
	Emerged         prometheus.Counter
	EmergeFailures  prometheus.Counter
	ProtocolErrors  prometheus.Counter
	AccessDenied    prometheus.Counter
	Clients         prometheus.Gauge
	BlocksSaved     prometheus.Counter
	SaveErrors      prometheus.Counter
	LoadedBlocks    prometheus.Gauge
	StepDuration    prometheus.Histogram
}

// NewMetrics создаёт счётчики и регистрирует их в reg (если не nil)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "voxel", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "voxel", Name: name, Help: help})
	}
	m := &Metrics{
		BlocksSent:      counter("blocks_sent_total", "Отправлено BLOCKDATA."),
		BlockBytesSent:  counter("block_bytes_sent_total", "Байт сериализованных блоков."),
		ExcessGotBlocks: counter("excess_gotblocks_total", "GOTBLOCKS для блоков, которых не было в полёте."),
		EmergeQueue:     gauge("emerge_queue_size", "Заданий в очереди загрузки и генерации."),
		Emerged:         counter("emerged_blocks_total", "Блоков загружено или сгенерировано."),
		EmergeFailures:  counter("emerge_failures_total", "Заданий загрузки, завершившихся ошибкой."),
		ProtocolErrors:  counter("protocol_errors_total", "Отброшенных некорректных сообщений."),
		AccessDenied:    counter("access_denied_total", "Отказов в подключении."),
		Clients:         gauge("clients", "Подключённых клиентов."),
		BlocksSaved:     counter("blocks_saved_total", "Блоков записано в хранилище."),
		SaveErrors:      counter("save_errors_total", "Ошибок записи в хранилище."),
		LoadedBlocks:    gauge("loaded_blocks", "Блоков в памяти."),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "step_duration_seconds",
			Help:      "Длительность шага сервера.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BlocksSent, m.BlockBytesSent, m.ExcessGotBlocks, m.EmergeQueue,
			m.Emerged, m.EmergeFailures, m.ProtocolErrors, m.AccessDenied, m.Clients,
			m.BlocksSaved, m.SaveErrors, m.LoadedBlocks, m.StepDuration)
	}
	return m
}
