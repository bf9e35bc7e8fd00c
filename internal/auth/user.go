// Package auth хранит учётные записи игроков и выдаёт токены
// администраторам HTTP API.
package auth

import (
	"strings"
	"time"
)

// Privs набор привилегий игрока
type Privs uint64

const (
	// PrivBuild копать и ставить узлы
	PrivBuild Privs = 1 << iota
	// PrivTeleport перемещаться без проверки скорости
	PrivTeleport
	// PrivSetTime менять время суток
	PrivSetTime
	// PrivPrivs раздавать привилегии
	PrivPrivs
	// PrivServer управлять сервером (сохранение, admin API)
	PrivServer

	PrivNone Privs = 0
	PrivAll  Privs = PrivBuild | PrivTeleport | PrivSetTime | PrivPrivs | PrivServer
)

// DefaultPrivs выдаются новому игроку
const DefaultPrivs = PrivBuild

var privNames = []struct {
	p    Privs
	name string
}{
	{PrivBuild, "build"},
	{PrivTeleport, "teleport"},
	{PrivSetTime, "settime"},
	{PrivPrivs, "privs"},
	{PrivServer, "server"},
}

// Has проверяет, что есть все привилегии из want
func (p Privs) Has(want Privs) bool { return p&want == want }

func (p Privs) String() string {
	var parts []string
	for _, pn := range privNames {
		if p&pn.p != 0 {
			parts = append(parts, pn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParsePrivs разбирает список через запятую. Неизвестные имена пропускаются.
func ParsePrivs(s string) Privs {
	var p Privs
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "all" {
			return PrivAll
		}
		for _, pn := range privNames {
			if pn.name == part {
				p |= pn.p
			}
		}
	}
	return p
}

// User учётная запись игрока
type User struct {
	ID           uint64    // Unique immutable identifier
	Username     string    // Unique username (case-insensitive)
	PasswordHash string    // bcrypt hashed password (60 chars)
	Privs        Privs     // Набор привилегий
	CreatedAt    time.Time // Account creation timestamp (server time)
	LastLogin    time.Time // Last successful login
}

// IsAdmin может управлять сервером
func (u *User) IsAdmin() bool { return u.Privs.Has(PrivServer) }
