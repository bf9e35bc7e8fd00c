package server

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/storage"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

const (
	// Сброс кольца ближайшего неотправленного блока
	nearestUnsentResetInterval = 20.0
	// Пауза, когда отправлять нечего
	nothingToSendPause = 2.0
	// Пока игрок строит, в полёте держим только один блок
	fullSendMinTimeFromBuilding = 2.0
	limitedMaxSimultaneousSends = 1
	// Ближние оболочки отправляются без ограничения строительством
	sendDisableLimitsMaxD = 1
	// С этого радиуса блоки за спиной камеры пропускаются
	inSightCheckMinD = 4

	// Граница мира в блоках
	mapGenerationLimit = 31000 / world.BlockSize

	cameraHeight = 1.5
	cameraFOV    = math.Pi / 2.5
)

// BlockStatus состояние блока в карте с точки зрения отправки
type BlockStatus int

const (
	BlockMissing BlockStatus = iota // Не загружен
	BlockDummy                      // Заглушка: на диске его нет
	BlockInvalid                    // Загружен, но не сгенерирован
	BlockReady
)

// sendEnv то, что выбору блоков нужно от сервера
type sendEnv interface {
	BlockStatus(pos vec.Vec3) BlockStatus
	// RequestEmerge ставит блок в очередь, если пир не превысил лимит
	RequestEmerge(peer network.PeerID, pos vec.Vec3, flags EmergeFlags)
}

// SendLimits ограничения выбора блоков для клиента
type SendLimits struct {
	MaxSimultaneousSends int
	SendDistance         int
	GenerateDistance     int
}

// BlockTransfer блок, выбранный к отправке. Меньше Priority раньше.
type BlockTransfer struct {
	Priority float32
	Pos      vec.Vec3
	Peer     network.PeerID
}

type clientState int

const (
	stateCreated clientState = iota
	stateActive
)

// RemoteClient состояние отправки блоков одному пиру
type RemoteClient struct {
	mu sync.Mutex

	PeerID    network.PeerID
	SessionID uuid.UUID

	state                clientState
	name                 string
	privs                auth.Privs
	serializationVersion uint8

	position mgl32.Vec3
	speed    mgl32.Vec3
	pitch    float32
	yaw      float32

	// Блоки, которые клиент уже получил. Очищается, когда клиент
	// выгрузил блок или блок изменился.
	blocksSent map[vec.Vec3]struct{}
	// Блоки в полёте: значение время с отправки
	blocksSending map[vec.Vec3]float32

	nearestUnsentD          int
	lastCenter              vec.Vec3
	nearestUnsentResetTimer float32
	nothingToSendPauseTimer float32
	excessGotBlocks         int

	// Время с последней установки или удаления узла
	timeFromBuilding float32

	connectedAt time.Time
}

// NewRemoteClient создаёт состояние для только что подключившегося пира
func NewRemoteClient(peer network.PeerID) *RemoteClient {
	return &RemoteClient{
		PeerID:           peer,
		SessionID:        uuid.New(),
		blocksSent:       make(map[vec.Vec3]struct{}),
		blocksSending:    make(map[vec.Vec3]float32),
		timeFromBuilding: 9999,
		connectedAt:      time.Now(),
	}
}

// activate переводит клиента в рабочее состояние после INIT
func (rc *RemoteClient) activate(name string, privs auth.Privs, version uint8, spawn mgl32.Vec3) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = stateActive
	rc.name = name
	rc.privs = privs
	rc.serializationVersion = version
	rc.position = spawn
}

// Active прошёл ли клиент INIT
func (rc *RemoteClient) Active() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state == stateActive
}

// Name имя игрока
func (rc *RemoteClient) Name() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.name
}

// Privs привилегии игрока
func (rc *RemoteClient) Privs() auth.Privs {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.privs
}

// SerializationVersion версия формата блока для этого клиента
func (rc *RemoteClient) SerializationVersion() uint8 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.serializationVersion
}

// SetPosition обновляет положение и взгляд игрока
func (rc *RemoteClient) SetPosition(pos, speed mgl32.Vec3, pitch, yaw float32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.position = pos
	rc.speed = speed
	rc.pitch = pitch
	rc.yaw = yaw
}

// Position положение и взгляд игрока
func (rc *RemoteClient) Position() (pos mgl32.Vec3, pitch, yaw float32) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.position, rc.pitch, rc.yaw
}

// AddTimeFromBuilding увеличивает время с последней стройки
func (rc *RemoteClient) AddTimeFromBuilding(dtime float32) {
	rc.mu.Lock()
	rc.timeFromBuilding += dtime
	rc.mu.Unlock()
}

// ResetTimeFromBuilding игрок только что поставил или сломал узел
func (rc *RemoteClient) ResetTimeFromBuilding() {
	rc.mu.Lock()
	rc.timeFromBuilding = 0
	rc.mu.Unlock()
}

// GetNextBlocks выбирает блоки для отправки, расширяя радиус поиска от
// ближайшего неотправленного. Недостающие блоки запрашиваются через env.
func (rc *RemoteClient) GetNextBlocks(env sendEnv, limits SendLimits, dtime float32) []BlockTransfer {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for p := range rc.blocksSending {
		rc.blocksSending[p] += dtime
	}

	if rc.nothingToSendPauseTimer > 0 {
		rc.nothingToSendPauseTimer -= dtime
		return nil
	}
	if rc.state != stateActive {
		return nil
	}

	maxUsual := limits.MaxSimultaneousSends
	if rc.timeFromBuilding < fullSendMinTimeFromBuilding {
		maxUsual = limitedMaxSimultaneousSends
	}
	if len(rc.blocksSending) >= maxUsual {
		return nil
	}

	center := blockPosOfPlayer(rc.position)
	camPos := rc.position.Add(mgl32.Vec3{0, cameraHeight, 0})
	camDir := cameraDirection(rc.pitch, rc.yaw)

	rc.nearestUnsentResetTimer += dtime
	if center != rc.lastCenter || rc.nearestUnsentResetTimer > nearestUnsentResetInterval {
		rc.nearestUnsentResetTimer = 0
		rc.nearestUnsentD = 0
		rc.lastCenter = center
	}

	dStart := rc.nearestUnsentD
	dMax := min(limits.SendDistance, dStart+1)
	genMax := limits.GenerateDistance
	sightRange := float32((limits.SendDistance + 1) * world.BlockSize)

	var (
		dest        []BlockTransfer
		newNearest  = -1
		queueIsFull bool
		d           int
	)

scan:
	for d = dStart; d <= dMax; d++ {
		for _, off := range shellOffsets(d) {
			maxDynamic := maxUsual
			if d <= sendDisableLimitsMaxD {
				maxDynamic = limits.MaxSimultaneousSends
			}
			if len(rc.blocksSending)+len(dest) >= maxDynamic {
				queueIsFull = true
				break scan
			}

			p := center.Add(off)
			if _, inFlight := rc.blocksSending[p]; inFlight {
				continue
			}
			if blockPosOverLimit(p) {
				continue
			}

			generate := d <= genMax
			if abs(p.Y-center.Y) > genMax-genMax/3 {
				generate = false
			}

			if d >= inSightCheckMinD && !isBlockInSight(p, camPos, camDir, sightRange) {
				continue
			}
			if _, sent := rc.blocksSent[p]; sent {
				continue
			}

			status := env.BlockStatus(p)
			if status == BlockDummy && !generate {
				continue
			}
			if status != BlockReady {
				if generate && newNearest == -1 {
					newNearest = d
				}
				var flags EmergeFlags
				if !generate {
					flags |= EmergeFlagFromDisk
				}
				env.RequestEmerge(rc.PeerID, p, flags)
				continue
			}

			if newNearest == -1 {
				newNearest = d
			}
			dest = append(dest, BlockTransfer{Priority: float32(d), Pos: p, Peer: rc.PeerID})
		}
	}

	switch {
	case newNearest != -1:
		rc.nearestUnsentD = newNearest
	case queueIsFull:
	case d > limits.SendDistance:
		rc.nearestUnsentD = 0
		rc.nothingToSendPauseTimer = nothingToSendPause
	default:
		rc.nearestUnsentD = d
	}
	return dest
}

// GotBlock клиент подтвердил получение. Подтверждение блока, который не
// был в полёте, не меняет состояние и возвращает false.
func (rc *RemoteClient) GotBlock(p vec.Vec3) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.blocksSending[p]; !ok {
		rc.excessGotBlocks++
		return false
	}
	delete(rc.blocksSending, p)
	rc.blocksSent[p] = struct{}{}
	return true
}

// SentBlock блок ушёл клиенту
func (rc *RemoteClient) SentBlock(p vec.Vec3) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.blocksSending[p]; !ok {
		rc.blocksSending[p] = 0
	}
}

// SetBlockNotSent блок нужно отправить заново
func (rc *RemoteClient) SetBlockNotSent(p vec.Vec3) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.nearestUnsentD = 0
	delete(rc.blocksSending, p)
	delete(rc.blocksSent, p)
}

// SetBlocksNotSent то же для набора блоков
func (rc *RemoteClient) SetBlocksNotSent(blocks map[vec.Vec3]struct{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.nearestUnsentD = 0
	for p := range blocks {
		delete(rc.blocksSending, p)
		delete(rc.blocksSent, p)
	}
}

// KnowsBlock есть ли блок у клиента или в пути к нему
func (rc *RemoteClient) KnowsBlock(p vec.Vec3) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.blocksSent[p]; ok {
		return true
	}
	_, ok := rc.blocksSending[p]
	return ok
}

// SendingCount число блоков в полёте
func (rc *RemoteClient) SendingCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.blocksSending)
}

// SentCount число подтверждённых блоков
func (rc *RemoteClient) SentCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.blocksSent)
}

// PrintInfo строка состояния для лога. Сбрасывает счётчик лишних GOTBLOCKS.
func (rc *RemoteClient) PrintInfo() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	s := fmt.Sprintf("RemoteClient %d: sent=%d sending=%d nearest_unsent_d=%d excess_gotblocks=%d",
		rc.PeerID, len(rc.blocksSent), len(rc.blocksSending), rc.nearestUnsentD, rc.excessGotBlocks)
	rc.excessGotBlocks = 0
	return s
}

// ClientInfo снимок состояния для HTTP API
type ClientInfo struct {
	Peer        uint16     `json:"peer"`
	Session     string     `json:"session"`
	Name        string     `json:"name"`
	Position    [3]float32 `json:"position"`
	Sent        int        `json:"blocks_sent"`
	Sending     int        `json:"blocks_sending"`
	ConnectedAt time.Time  `json:"connected_at"`
}

// Info снимок для HTTP API
func (rc *RemoteClient) Info() ClientInfo {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return ClientInfo{
		Peer:        uint16(rc.PeerID),
		Session:     rc.SessionID.String(),
		Name:        rc.name,
		Position:    [3]float32(rc.position),
		Sent:        len(rc.blocksSent),
		Sending:     len(rc.blocksSending),
		ConnectedAt: rc.connectedAt,
	}
}

// cameraDirection направление взгляда по углам в градусах
func cameraDirection(pitch, yaw float32) mgl32.Vec3 {
	p := float64(mgl32.DegToRad(pitch))
	y := float64(mgl32.DegToRad(yaw))
	return mgl32.Vec3{
		float32(-math.Cos(p) * math.Sin(y)),
		float32(-math.Sin(p)),
		float32(math.Cos(p) * math.Cos(y)),
	}
}

// isBlockInSight попадает ли центр блока в конус камеры
func isBlockInSight(blockPos vec.Vec3, camPos, camDir mgl32.Vec3, rangeNodes float32) bool {
	origin := world.BlockOrigin(blockPos)
	half := float32(world.BlockSize) / 2
	center := mgl32.Vec3{float32(origin.X) + half, float32(origin.Y) + half, float32(origin.Z) + half}
	rel := center.Sub(camPos)
	d := rel.Len()

	// Совсем близкие блоки видны всегда
	if d < 1.44*1.44*world.BlockSize/2 {
		return true
	}
	if d > rangeNodes {
		return false
	}

	// Камера отодвигается назад на радиус блока: блок не точка
	blockMaxRadius := 0.5 * 1.44 * 1.44 * float32(world.BlockSize)
	adj := blockMaxRadius / float32(math.Cos((math.Pi-cameraFOV)/2))
	rel = rel.Add(camDir.Mul(adj))

	cosAngle := rel.Dot(camDir) / rel.Len()
	return cosAngle >= float32(math.Cos(cameraFOV/2*4/3))
}

func blockPosOverLimit(p vec.Vec3) bool {
	return abs(p.X) > mapGenerationLimit || abs(p.Y) > mapGenerationLimit || abs(p.Z) > mapGenerationLimit
}

var (
	shellMu    sync.Mutex
	shellCache = map[int][]vec.Vec3{}
)

// shellOffsets смещения на поверхности куба радиуса d, ближние первыми
func shellOffsets(d int) []vec.Vec3 {
	shellMu.Lock()
	defer shellMu.Unlock()
	if s, ok := shellCache[d]; ok {
		return s
	}
	var s []vec.Vec3
	for x := -d; x <= d; x++ {
		for y := -d; y <= d; y++ {
			for z := -d; z <= d; z++ {
				if max(abs(x), abs(y), abs(z)) == d {
					s = append(s, vec.New(x, y, z))
				}
			}
		}
	}
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].DistanceSq(vec.Zero) < s[j].DistanceSq(vec.Zero)
	})
	shellCache[d] = s
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func blockPosOfPlayer(pos mgl32.Vec3) vec.Vec3 {
	return world.BlockPosOf(vec.New(
		int(math.Floor(float64(pos.X()))),
		int(math.Floor(float64(pos.Y()))),
		int(math.Floor(float64(pos.Z()))),
	))
}

// CenterBlock блок, в котором стоит игрок; false до входа в игру
func (rc *RemoteClient) CenterBlock() (vec.Vec3, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state != stateActive {
		return vec.Vec3{}, false
	}
	return blockPosOfPlayer(rc.position), true
}

// playerPosition положение для сохранения; false до INIT
func (rc *RemoteClient) playerPosition() (storage.PlayerPosition, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state != stateActive {
		return storage.PlayerPosition{}, false
	}
	return storage.PlayerPosition{
		Name:      rc.name,
		Position:  rc.position,
		Pitch:     rc.pitch,
		Yaw:       rc.yaw,
		UpdatedAt: time.Now(),
	}, true
}
