package server

import (
	"sync"

	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/vec"
)

// EmergeFlags флаги запроса блока
type EmergeFlags uint8

// EmergeFlagFromDisk блок нужно только прочитать с диска, не генерировать
const EmergeFlagFromDisk EmergeFlags = 1 << 0

// QueuedBlockEmerge задание на загрузку или генерацию блока
// и пиры, которые его ждут
type QueuedBlockEmerge struct {
	Pos   vec.Vec3
	Peers map[network.PeerID]EmergeFlags
}

// OnlyFromDisk генерация не нужна ни одному из ждущих.
// Задание без ждущих тоже только читается.
func (q *QueuedBlockEmerge) OnlyFromDisk() bool {
	for _, f := range q.Peers {
		if f&EmergeFlagFromDisk == 0 {
			return false
		}
	}
	return true
}

// EmergeQueue FIFO очередь заданий без повторов по координате
type EmergeQueue struct {
	mu     sync.Mutex
	queue  []*QueuedBlockEmerge
	byPos  map[vec.Vec3]*QueuedBlockEmerge
	notify chan struct{}
}

// NewEmergeQueue создаёт пустую очередь
func NewEmergeQueue() *EmergeQueue {
	return &EmergeQueue{
		byPos:  make(map[vec.Vec3]*QueuedBlockEmerge),
		notify: make(chan struct{}, 1),
	}
}

// AddBlock ставит блок в очередь. Если блок уже ждёт, пир добавляется
// к существующему заданию; повторный запрос того же пира сужает флаги.
// peer == PeerIDInexistent ставит задание без ждущего.
func (eq *EmergeQueue) AddBlock(peer network.PeerID, pos vec.Vec3, flags EmergeFlags) {
	eq.mu.Lock()
	q, exists := eq.byPos[pos]
	if !exists {
		q = &QueuedBlockEmerge{Pos: pos, Peers: make(map[network.PeerID]EmergeFlags)}
		eq.byPos[pos] = q
		eq.queue = append(eq.queue, q)
	}
	if peer != network.PeerIDInexistent {
		if old, ok := q.Peers[peer]; ok {
			flags &= old
		}
		q.Peers[peer] = flags
	}
	eq.mu.Unlock()

	select {
	case eq.notify <- struct{}{}:
	default:
	}
}

// Pop снимает первое задание или возвращает nil
func (eq *EmergeQueue) Pop() *QueuedBlockEmerge {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if len(eq.queue) == 0 {
		return nil
	}
	q := eq.queue[0]
	eq.queue[0] = nil
	eq.queue = eq.queue[1:]
	delete(eq.byPos, q.Pos)
	return q
}

// Size число заданий в очереди
func (eq *EmergeQueue) Size() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return len(eq.queue)
}

// PeerItemCount сколько заданий ждёт пир
func (eq *EmergeQueue) PeerItemCount(peer network.PeerID) int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	n := 0
	for _, q := range eq.queue {
		if _, ok := q.Peers[peer]; ok {
			n++
		}
	}
	return n
}

// Notify сигналит, что в очереди появились задания
func (eq *EmergeQueue) Notify() <-chan struct{} { return eq.notify }
