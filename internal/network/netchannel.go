// Package network передаёт кадры между клиентом и сервером поверх KCP.
// Каждая сессия получает номер пира, сообщения протокола идут внутри
// кадров с длиной и необязательным сжатием zstd.
package network

import (
	"errors"
	"time"
)

// PeerID номер пира на сервере
type PeerID uint16

const (
	// PeerIDInexistent пир не назначен
	PeerIDInexistent PeerID = 0
	// PeerIDServer номер сервера с точки зрения клиента
	PeerIDServer PeerID = 1
	// firstClientPeer первый номер, выдаваемый клиентам
	firstClientPeer PeerID = 2
)

var (
	// ErrClosed соединение или сервер закрыты
	ErrClosed = errors.New("соединение закрыто")
	// ErrPeerNotFound пира с таким номером нет
	ErrPeerNotFound = errors.New("пир не найден")
	// ErrFrameTooLarge длина кадра больше допустимой
	ErrFrameTooLarge = errors.New("слишком большой кадр")
)

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	RTT             time.Duration // Round-trip time
	PacketsSent     uint64        // Отправлено кадров
	PacketsReceived uint64        // Получено кадров
	BytesSent       uint64        // Отправлено байт
	BytesReceived   uint64        // Получено байт
	LastActivity    time.Time     // Последняя активность
	Connected       bool          // Статус соединения
	RemoteAddr      string        // Адрес удалённого узла
}

// ChannelConfig содержит конфигурацию канала
type ChannelConfig struct {
	// SendQueue длина очереди исходящих кадров
	SendQueue int
	// RecvQueue длина очереди входящих кадров
	RecvQueue int
	// Timeout отключение пира без активности
	Timeout time.Duration
	// CompressThreshold кадры длиннее сжимаются zstd
	CompressThreshold int
	// MaxFrameSize верхняя граница длины кадра
	MaxFrameSize int
	// DataShards и ParityShards параметры FEC сессии KCP
	DataShards   int
	ParityShards int
}

// DefaultChannelConfig возвращает конфигурацию канала по умолчанию
func DefaultChannelConfig() *ChannelConfig {
	return &ChannelConfig{
		SendQueue:         1024,
		RecvQueue:         1024,
		Timeout:           30 * time.Second,
		CompressThreshold: 512,
		MaxFrameSize:      16 << 20,
		DataShards:        10,
		ParityShards:      3,
	}
}
