package protocol

import (
	"fmt"
	"time"
)

// Packet конверт сообщения на проводе
type Packet struct {
	Command   Command
	Sequence  uint32
	Timestamp int64
	Payload   []byte
}

// MessageSerializer предоставляет функции для сериализации и десериализации сообщений
type MessageSerializer struct {
	// Now источник времени для Timestamp, подменяется в тестах
	Now func() time.Time
}

// NewMessageSerializer создает новый сериализатор сообщений
func NewMessageSerializer() *MessageSerializer {
	return &MessageSerializer{Now: time.Now}
}

// SerializeMessage кодирует сообщение вместе с конвертом
func (ms *MessageSerializer) SerializeMessage(msg Message, sequence uint32) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("ошибка сериализации: пустое сообщение")
	}
	var payload encoder
	msg.encode(&payload)

	var env encoder
	env.uint(1, uint64(msg.Command()))
	env.uint(2, uint64(sequence))
	env.sint(3, ms.Now().UnixNano())
	env.bytes(4, payload.b)
	return env.b, nil
}

// DeserializePacket разбирает только конверт
func (ms *MessageSerializer) DeserializePacket(data []byte) (*Packet, error) {
	fields, err := readFields(data)
	if err != nil {
		return nil, fmt.Errorf("ошибка десериализации конверта: %w", err)
	}
	p := &Packet{}
	for _, f := range fields {
		var v uint64
		switch f.num {
		case 1:
			v, err = f.uint()
			p.Command = Command(v)
		case 2:
			v, err = f.uint()
			p.Sequence = uint32(v)
		case 3:
			p.Timestamp, err = f.sint()
		case 4:
			p.Payload, err = f.bytes()
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка десериализации конверта: %w", err)
		}
	}
	if p.Command == 0 {
		return nil, fmt.Errorf("ошибка десериализации конверта: %w: нет команды", ErrMalformed)
	}
	return p, nil
}

// DeserializeMessage разбирает конверт и сообщение внутри
func (ms *MessageSerializer) DeserializeMessage(data []byte) (Message, *Packet, error) {
	p, err := ms.DeserializePacket(data)
	if err != nil {
		return nil, nil, err
	}
	msg, err := ms.DeserializePayload(p)
	if err != nil {
		return nil, p, err
	}
	return msg, p, nil
}

// DeserializePayload разбирает полезную нагрузку по номеру команды
func (ms *MessageSerializer) DeserializePayload(p *Packet) (Message, error) {
	msg := newMessage(p.Command)
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, p.Command)
	}
	fields, err := readFields(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", p.Command, err)
	}
	if err := msg.decode(fields); err != nil {
		return nil, fmt.Errorf("ошибка десериализации %s: %w", p.Command, err)
	}
	return msg, nil
}

// Encode кодирует сообщение сериализатором по умолчанию
func Encode(msg Message) ([]byte, error) {
	return defaultSerializer.SerializeMessage(msg, 0)
}

// Decode разбирает сообщение сериализатором по умолчанию
func Decode(data []byte) (Message, error) {
	msg, _, err := defaultSerializer.DeserializeMessage(data)
	return msg, err
}

var defaultSerializer = NewMessageSerializer()
