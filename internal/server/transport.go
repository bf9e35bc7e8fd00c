package server

import (
	"context"

	"github.com/annel0/voxelworld/internal/network"
)

// Transport сетевой слой сервера. Реализуется network.ChannelServer.
type Transport interface {
	Receive(ctx context.Context) (network.Event, error)
	Send(ctx context.Context, peer network.PeerID, payload []byte) error
	Disconnect(peer network.PeerID)
}

var _ Transport = (*network.ChannelServer)(nil)
