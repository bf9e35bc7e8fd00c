package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// ErrUnexpectedCommand клиент прислал команду, адресованную клиенту
var ErrUnexpectedCommand = errors.New("неожиданная команда от клиента")

// HandleEvent обрабатывает событие транспорта
func (s *Server) HandleEvent(ctx context.Context, ev network.Event) {
	switch ev.Type {
	case network.EventConnect:
		s.addClient(ev.Peer)
		s.logger.Info("🔌 Пир %d подключился с %s", ev.Peer, ev.Addr)
	case network.EventData:
		_ = s.HandlePeerMessage(ctx, ev.Peer, ev.Data)
	case network.EventDisconnect:
		s.removeClient(ctx, ev.Peer)
	}
}

func (s *Server) addClient(peer network.PeerID) *RemoteClient {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if rc, ok := s.clients[peer]; ok {
		return rc
	}
	rc := NewRemoteClient(peer)
	s.clients[peer] = rc
	s.metrics.Clients.Set(float64(len(s.clients)))
	return rc
}

// removeClient забывает всё состояние пира и сохраняет его положение
func (s *Server) removeClient(ctx context.Context, peer network.PeerID) {
	s.clientsMu.Lock()
	rc, ok := s.clients[peer]
	delete(s.clients, peer)
	s.metrics.Clients.Set(float64(len(s.clients)))
	s.clientsMu.Unlock()
	if !ok {
		return
	}

	if p, active := rc.playerPosition(); active {
		if s.positions != nil {
			if err := s.positions.Save(ctx, p); err != nil {
				s.logger.Warn("Положение игрока %s не сохранено: %v", p.Name, err)
			}
		}
		s.publishPlayer(ctx, eventbus.TypePlayerLeave, rc)
	}
	s.logger.Info("👋 Пир %d отключился (%s)", peer, rc.PrintInfo())
}

// HandlePeerMessage разбирает и выполняет одно сообщение пира.
// Некорректное сообщение отбрасывается, соединение не рвётся.
func (s *Server) HandlePeerMessage(ctx context.Context, peer network.PeerID, data []byte) error {
	rc := s.client(peer)
	if rc == nil {
		rc = s.addClient(peer)
	}

	msg, _, err := s.serializer.DeserializeMessage(data)
	if err == nil && msg.Command().ToClient() {
		err = fmt.Errorf("%w: %s", ErrUnexpectedCommand, msg.Command())
	}
	if err != nil {
		s.metrics.ProtocolErrors.Inc()
		s.logger.LogProtocolError(uint16(peer), err, data)
		return err
	}

	if m, ok := msg.(*protocol.Init); ok {
		return s.handleInit(ctx, rc, m)
	}
	if !rc.Active() {
		s.logger.Debug("Пир %d прислал %s до INIT, пропускаем", peer, msg.Command())
		return nil
	}

	switch m := msg.(type) {
	case *protocol.PlayerPos:
		rc.SetPosition(m.Position, m.Speed, m.Pitch, m.Yaw)
	case *protocol.GotBlocks:
		for _, p := range m.Blocks {
			if !rc.GotBlock(p) {
				s.metrics.ExcessGotBlocks.Inc()
			}
		}
	case *protocol.DeletedBlocks:
		for _, p := range m.Blocks {
			rc.SetBlockNotSent(p)
		}
	case *protocol.Password:
		return s.handlePassword(ctx, rc, m)
	case *protocol.Interact:
		return s.handleInteract(rc, m)
	}
	return nil
}

func (s *Server) handleInit(ctx context.Context, rc *RemoteClient, m *protocol.Init) error {
	if rc.Active() {
		s.logger.Debug("Повторный INIT от пира %d", rc.PeerID)
		return nil
	}
	if m.ProtocolVersion != protocol.ProtocolVersion {
		return s.deny(ctx, rc, fmt.Sprintf("несовместимая версия протокола: сервер %d, клиент %d",
			protocol.ProtocolVersion, m.ProtocolVersion))
	}

	user, err := s.auth.Authenticate(ctx, m.PlayerName, m.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidName), errors.Is(err, auth.ErrWrongPassword):
		return s.deny(ctx, rc, err.Error())
	case err != nil:
		s.logger.Error("Ошибка проверки игрока %s: %v", m.PlayerName, err)
		return s.deny(ctx, rc, "ошибка проверки пароля на сервере")
	}
	if s.nameInUse(user.Username, rc.PeerID) {
		return s.deny(ctx, rc, "игрок с таким именем уже в игре")
	}

	version := min(m.MaxSerializationVersion, world.HighestVersion)
	spawn := s.spawnPosition(ctx, m.PlayerName)
	rc.activate(m.PlayerName, user.Privs, version, spawn)

	if err := s.send(ctx, rc.PeerID, &protocol.InitReply{SerializationVersion: version, SpawnPos: spawn}); err != nil {
		return err
	}
	if err := s.send(ctx, rc.PeerID, &protocol.TimeOfDay{Time: s.TimeOfDay()}); err != nil {
		return err
	}

	s.logger.Info("🎮 Игрок %s вошёл (пир %d, сессия %s, формат %d)", m.PlayerName, rc.PeerID, rc.SessionID, version)
	s.publishPlayer(ctx, eventbus.TypePlayerJoin, rc)
	return nil
}

// deny отвечает ACCESS_DENIED и закрывает соединение
func (s *Server) deny(ctx context.Context, rc *RemoteClient, reason string) error {
	s.metrics.AccessDenied.Inc()
	s.logger.Info("⛔ Пиру %d отказано: %s", rc.PeerID, reason)
	err := s.send(ctx, rc.PeerID, &protocol.AccessDenied{Reason: reason})
	s.transport.Disconnect(rc.PeerID)
	return err
}

func (s *Server) nameInUse(name string, except network.PeerID) bool {
	used := false
	s.forEachClient(func(rc *RemoteClient) {
		if rc.PeerID != except && rc.Active() && strings.EqualFold(rc.Name(), name) {
			used = true
		}
	})
	return used
}

// spawnPosition сохранённое положение игрока или точка над поверхностью у начала координат
func (s *Server) spawnPosition(ctx context.Context, name string) mgl32.Vec3 {
	if s.positions != nil {
		p, ok, err := s.positions.Load(ctx, name)
		if err != nil {
			s.logger.Warn("Положение игрока %s не прочитано: %v", name, err)
		}
		if ok {
			return p.Position
		}
	}
	h := 0
	if s.gen != nil {
		h = s.gen.SurfaceHeight(0, 0)
	}
	return mgl32.Vec3{0.5, float32(h) + 1, 0.5}
}

func (s *Server) handlePassword(ctx context.Context, rc *RemoteClient, m *protocol.Password) error {
	if err := s.auth.ChangePassword(ctx, rc.Name(), m.Old, m.New); err != nil {
		s.logger.Info("Игрок %s не сменил пароль: %v", rc.Name(), err)
		return err
	}
	s.logger.Info("🔑 Игрок %s сменил пароль", rc.Name())
	return nil
}

// handleInteract копание и установка узлов. Отклонённое действие
// возвращает клиенту актуальные блоки.
func (s *Server) handleInteract(rc *RemoteClient, m *protocol.Interact) error {
	switch m.Action {
	case protocol.InteractStartDigging, protocol.InteractStopDigging:
		return nil
	case protocol.InteractDigComplete, protocol.InteractPlace:
	default:
		return fmt.Errorf("%w: действие %s", ErrUnexpectedCommand, m.Action)
	}

	revert := func(reason string) error {
		rc.SetBlockNotSent(world.BlockPosOf(m.Under))
		rc.SetBlockNotSent(world.BlockPosOf(m.Above))
		s.logger.Debug("Пир %d: %s %s отклонено: %s", rc.PeerID, m.Action, m.Under, reason)
		return nil
	}

	privs := rc.Privs()
	if !privs.Has(auth.PrivBuild) {
		return revert("нет привилегии build")
	}
	target := m.Under
	if m.Action == protocol.InteractPlace {
		target = m.Above
	}
	if !privs.Has(auth.PrivTeleport) && !s.inReach(rc, target) {
		return revert("слишком далеко")
	}

	reg := s.m.Registry()
	peer := uint16(rc.PeerID)

	if m.Action == protocol.InteractDigComplete {
		n, err := s.m.GetNode(m.Under)
		if err != nil {
			return revert(err.Error())
		}
		if !reg.Lookup(n.Content).Diggable {
			return revert("узел нельзя выкопать")
		}
		if meta := s.m.GetNodeMetadata(m.Under); meta != nil && meta.NodeRemovalDisabled() {
			return revert("содержимое узла не пусто")
		}
		if _, err := s.m.RemoveNodeAndUpdate(m.Under, peer); err != nil {
			return revert(err.Error())
		}
		rc.ResetTimeFromBuilding()
		return nil
	}

	if m.Item == content.Air || m.Item == content.Ignore || !reg.Registered(m.Item) {
		return revert("неизвестный предмет")
	}
	old, err := s.m.GetNode(m.Above)
	if err != nil {
		return revert(err.Error())
	}
	if !reg.Lookup(old.Content).BuildableTo {
		return revert("место занято")
	}

	n := world.NewNode(m.Item)
	if reg.Lookup(m.Item).ParamType == content.ParamFaceDirSimple {
		_, _, yaw := rc.Position()
		n.Param1 = world.FaceDirFromYaw(yaw)
	}
	if _, err := s.m.AddNodeAndUpdate(m.Above, n, peer); err != nil {
		return revert(err.Error())
	}
	rc.ResetTimeFromBuilding()
	return nil
}

// inReach достаёт ли игрок до центра узла
func (s *Server) inReach(rc *RemoteClient, p vec.Vec3) bool {
	pos, _, _ := rc.Position()
	center := mgl32.Vec3{float32(p.X) + 0.5, float32(p.Y) + 0.5, float32(p.Z) + 0.5}
	eye := pos.Add(mgl32.Vec3{0, cameraHeight, 0})
	return center.Sub(eye).Len() <= s.cfg.MaxReach
}
