package client

import (
	"sync"

	"github.com/annel0/voxelworld/internal/vec"
)

// MeshUpdateQueue очередь блоков на перестройку геометрии. Блок стоит
// в очереди не больше одного раза: данные для построения снимаются
// в момент выборки, поэтому повторная постановка ничего не добавляет.
type MeshUpdateQueue struct {
	mu     sync.Mutex
	items  []vec.Vec3
	queued map[vec.Vec3]struct{}
	notify chan struct{}
}

// NewMeshUpdateQueue создаёт пустую очередь
func NewMeshUpdateQueue() *MeshUpdateQueue {
	return &MeshUpdateQueue{
		queued: make(map[vec.Vec3]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// Push ставит блок в конец очереди. false, если он уже ждёт.
func (q *MeshUpdateQueue) Push(pos vec.Vec3) bool {
	q.mu.Lock()
	if _, ok := q.queued[pos]; ok {
		q.mu.Unlock()
		return false
	}
	q.queued[pos] = struct{}{}
	q.items = append(q.items, pos)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop забирает первый блок
func (q *MeshUpdateQueue) Pop() (vec.Vec3, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return vec.Vec3{}, false
	}
	pos := q.items[0]
	q.items[0] = vec.Vec3{}
	q.items = q.items[1:]
	delete(q.queued, pos)
	return pos, true
}

// Size сколько блоков ждёт
func (q *MeshUpdateQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify срабатывает после Push
func (q *MeshUpdateQueue) Notify() <-chan struct{} { return q.notify }
