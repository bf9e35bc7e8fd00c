// Package protocol описывает сообщения между клиентом и сервером и их
// бинарное представление. Каждое сообщение кодируется полями protowire
// и заворачивается в конверт с номером команды.
package protocol

import "fmt"

// ProtocolVersion версия набора сообщений. Клиент и сервер с разными
// версиями не договорятся, сервер отвечает ACCESS_DENIED.
const ProtocolVersion uint16 = 3

// Command номер команды в конверте
type Command uint16

// Команды клиенту
const (
	ToClientInit         Command = 0x10
	ToClientBlockData    Command = 0x20
	ToClientAddNode      Command = 0x21
	ToClientRemoveNode   Command = 0x22
	ToClientTimeOfDay    Command = 0x29
	ToClientAccessDenied Command = 0x35
)

// Команды серверу. Номера пересекаются с командами клиенту,
// направление определяет сторона, которая читает.
const (
	ToServerInit          Command = 0x110
	ToServerPlayerPos     Command = 0x123
	ToServerGotBlocks     Command = 0x124
	ToServerDeletedBlocks Command = 0x125
	ToServerPassword      Command = 0x136
	ToServerInteract      Command = 0x139
)

var commandNames = map[Command]string{
	ToClientInit:          "TOCLIENT_INIT",
	ToClientBlockData:     "TOCLIENT_BLOCKDATA",
	ToClientAddNode:       "TOCLIENT_ADDNODE",
	ToClientRemoveNode:    "TOCLIENT_REMOVENODE",
	ToClientTimeOfDay:     "TOCLIENT_TIME_OF_DAY",
	ToClientAccessDenied:  "TOCLIENT_ACCESS_DENIED",
	ToServerInit:          "TOSERVER_INIT",
	ToServerPlayerPos:     "TOSERVER_PLAYERPOS",
	ToServerGotBlocks:     "TOSERVER_GOTBLOCKS",
	ToServerDeletedBlocks: "TOSERVER_DELETEDBLOCKS",
	ToServerPassword:      "TOSERVER_PASSWORD",
	ToServerInteract:      "TOSERVER_INTERACT",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COMMAND_0x%x", uint16(c))
}

// ToClient адресована ли команда клиенту
func (c Command) ToClient() bool {
	return c < 0x100
}

// InteractAction действие игрока с узлом
type InteractAction uint8

const (
	InteractStartDigging InteractAction = iota
	InteractStopDigging
	InteractDigComplete
	InteractPlace
)

func (a InteractAction) String() string {
	switch a {
	case InteractStartDigging:
		return "start_digging"
	case InteractStopDigging:
		return "stop_digging"
	case InteractDigComplete:
		return "dig_complete"
	case InteractPlace:
		return "place"
	default:
		return fmt.Sprintf("action_%d", uint8(a))
	}
}
