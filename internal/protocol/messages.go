package protocol

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

// Message сообщение протокола
type Message interface {
	Command() Command
	encode(e *encoder)
	decode(fields []field) error
}

// newMessage пустое сообщение для команды
func newMessage(c Command) Message {
	switch c {
	case ToClientInit:
		return &InitReply{}
	case ToClientBlockData:
		return &BlockData{}
	case ToClientAddNode:
		return &AddNode{}
	case ToClientRemoveNode:
		return &RemoveNode{}
	case ToClientTimeOfDay:
		return &TimeOfDay{}
	case ToClientAccessDenied:
		return &AccessDenied{}
	case ToServerInit:
		return &Init{}
	case ToServerPlayerPos:
		return &PlayerPos{}
	case ToServerGotBlocks:
		return &GotBlocks{}
	case ToServerDeletedBlocks:
		return &DeletedBlocks{}
	case ToServerPassword:
		return &Password{}
	case ToServerInteract:
		return &Interact{}
	default:
		return nil
	}
}

// Init первое сообщение клиента
type Init struct {
	// MaxSerializationVersion старшая версия формата блока, которую понимает клиент
	MaxSerializationVersion uint8
	ProtocolVersion         uint16
	PlayerName              string
	Password                string
}

func (*Init) Command() Command { return ToServerInit }

func (m *Init) encode(e *encoder) {
	e.uint(1, uint64(m.MaxSerializationVersion))
	e.uint(2, uint64(m.ProtocolVersion))
	e.string(3, m.PlayerName)
	e.string(4, m.Password)
}

func (m *Init) decode(fields []field) (err error) {
	for _, f := range fields {
		var v uint64
		switch f.num {
		case 1:
			v, err = f.uint()
			m.MaxSerializationVersion = uint8(v)
		case 2:
			v, err = f.uint()
			m.ProtocolVersion = uint16(v)
		case 3:
			m.PlayerName, err = f.string()
		case 4:
			m.Password, err = f.string()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// InitReply ответ сервера на Init
type InitReply struct {
	// SerializationVersion версия, в которой сервер будет слать блоки
	SerializationVersion uint8
	SpawnPos             mgl32.Vec3
}

func (*InitReply) Command() Command { return ToClientInit }

func (m *InitReply) encode(e *encoder) {
	e.uint(1, uint64(m.SerializationVersion))
	e.vecf(2, m.SpawnPos)
}

func (m *InitReply) decode(fields []field) (err error) {
	for _, f := range fields {
		switch f.num {
		case 1:
			var v uint64
			v, err = f.uint()
			m.SerializationVersion = uint8(v)
		case 2:
			m.SpawnPos, err = f.vecf()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AccessDenied отказ в подключении с причиной для игрока
type AccessDenied struct {
	Reason string
}

func (*AccessDenied) Command() Command { return ToClientAccessDenied }

func (m *AccessDenied) encode(e *encoder) { e.string(1, m.Reason) }

func (m *AccessDenied) decode(fields []field) (err error) {
	for _, f := range fields {
		if f.num == 1 {
			if m.Reason, err = f.string(); err != nil {
				return err
			}
		}
	}
	return nil
}

// BlockData сериализованный блок по координате блока
type BlockData struct {
	Pos  vec.Vec3
	Data []byte
}

func (*BlockData) Command() Command { return ToClientBlockData }

func (m *BlockData) encode(e *encoder) {
	e.vec(1, m.Pos)
	e.bytes(2, m.Data)
}

func (m *BlockData) decode(fields []field) (err error) {
	for _, f := range fields {
		switch f.num {
		case 1:
			m.Pos, err = f.vec()
		case 2:
			m.Data, err = f.bytes()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddNode установка одного узла
type AddNode struct {
	Pos  vec.Vec3
	Node world.Node
}

func (*AddNode) Command() Command { return ToClientAddNode }

func (m *AddNode) encode(e *encoder) {
	e.vec(1, m.Pos)
	e.uint(2, uint64(m.Node.Content))
	e.uint(3, uint64(m.Node.Param1))
	e.uint(4, uint64(m.Node.Param2))
}

func (m *AddNode) decode(fields []field) (err error) {
	for _, f := range fields {
		var v uint64
		switch f.num {
		case 1:
			m.Pos, err = f.vec()
		case 2:
			v, err = f.uint()
			m.Node.Content = uint8(v)
		case 3:
			v, err = f.uint()
			m.Node.Param1 = uint8(v)
		case 4:
			v, err = f.uint()
			m.Node.Param2 = uint8(v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode удаление узла
type RemoveNode struct {
	Pos vec.Vec3
}

func (*RemoveNode) Command() Command { return ToClientRemoveNode }

func (m *RemoveNode) encode(e *encoder) { e.vec(1, m.Pos) }

func (m *RemoveNode) decode(fields []field) (err error) {
	for _, f := range fields {
		if f.num == 1 {
			if m.Pos, err = f.vec(); err != nil {
				return err
			}
		}
	}
	return nil
}

// TimeOfDay время суток 0..23999
type TimeOfDay struct {
	Time uint16
}

func (*TimeOfDay) Command() Command { return ToClientTimeOfDay }

func (m *TimeOfDay) encode(e *encoder) { e.uint(1, uint64(m.Time)) }

func (m *TimeOfDay) decode(fields []field) error {
	for _, f := range fields {
		if f.num == 1 {
			v, err := f.uint()
			if err != nil {
				return err
			}
			m.Time = uint16(v % 24000)
		}
	}
	return nil
}

// PlayerPos положение и взгляд игрока
type PlayerPos struct {
	Position mgl32.Vec3
	Speed    mgl32.Vec3
	Pitch    float32
	Yaw      float32
}

func (*PlayerPos) Command() Command { return ToServerPlayerPos }

func (m *PlayerPos) encode(e *encoder) {
	e.vecf(1, m.Position)
	e.vecf(2, m.Speed)
	e.float(3, m.Pitch)
	e.float(4, m.Yaw)
}

func (m *PlayerPos) decode(fields []field) (err error) {
	for _, f := range fields {
		switch f.num {
		case 1:
			m.Position, err = f.vecf()
		case 2:
			m.Speed, err = f.vecf()
		case 3:
			m.Pitch, err = f.float()
		case 4:
			m.Yaw, err = f.float()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// blockList список координат блоков
type blockList []vec.Vec3

func (l blockList) encode(e *encoder) {
	for _, p := range l {
		e.vec(1, p)
	}
}

func (l *blockList) decode(fields []field) error {
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		p, err := f.vec()
		if err != nil {
			return err
		}
		*l = append(*l, p)
	}
	return nil
}

// GotBlocks подтверждение получения блоков
type GotBlocks struct {
	Blocks []vec.Vec3
}

func (*GotBlocks) Command() Command { return ToServerGotBlocks }

func (m *GotBlocks) encode(e *encoder) { blockList(m.Blocks).encode(e) }

func (m *GotBlocks) decode(fields []field) error {
	return (*blockList)(&m.Blocks).decode(fields)
}

// DeletedBlocks клиент выгрузил блоки, их нужно будет прислать снова
type DeletedBlocks struct {
	Blocks []vec.Vec3
}

func (*DeletedBlocks) Command() Command { return ToServerDeletedBlocks }

func (m *DeletedBlocks) encode(e *encoder) { blockList(m.Blocks).encode(e) }

func (m *DeletedBlocks) decode(fields []field) error {
	return (*blockList)(&m.Blocks).decode(fields)
}

// Password смена пароля игрока
type Password struct {
	Old string
	New string
}

func (*Password) Command() Command { return ToServerPassword }

func (m *Password) encode(e *encoder) {
	e.string(1, m.Old)
	e.string(2, m.New)
}

func (m *Password) decode(fields []field) (err error) {
	for _, f := range fields {
		switch f.num {
		case 1:
			m.Old, err = f.string()
		case 2:
			m.New, err = f.string()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Interact действие с узлом: копание или установка.
// Under узел, на который смотрит игрок, Above пустой узел перед ним.
type Interact struct {
	Action InteractAction
	Under  vec.Vec3
	Above  vec.Vec3
	// Item тип узла для установки
	Item uint8
}

func (*Interact) Command() Command { return ToServerInteract }

func (m *Interact) encode(e *encoder) {
	e.uint(1, uint64(m.Action))
	e.vec(2, m.Under)
	e.vec(3, m.Above)
	e.uint(4, uint64(m.Item))
}

func (m *Interact) decode(fields []field) (err error) {
	for _, f := range fields {
		var v uint64
		switch f.num {
		case 1:
			v, err = f.uint()
			m.Action = InteractAction(v)
		case 2:
			m.Under, err = f.vec()
		case 3:
			m.Above, err = f.vec()
		case 4:
			v, err = f.uint()
			m.Item = uint8(v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
