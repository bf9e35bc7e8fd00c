package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

// emergeLoop обрабатывает очередь, пока не отменён ctx
func (s *Server) emergeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		for {
			q := s.emergeQueue.Pop()
			if q == nil {
				break
			}
			s.metrics.EmergeQueue.Set(float64(s.emergeQueue.Size()))
			if err := s.runEmergeJob(ctx, q); err != nil {
				s.logger.Warn("Блок %s не получен: %v", q.Pos, err)
			}
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-s.emergeQueue.Notify():
		}
	}
}

// runEmergeJob загружает или генерирует один блок. Паника генератора
// перехватывается здесь и не останавливает рабочий цикл.
func (s *Server) runEmergeJob(ctx context.Context, q *QueuedBlockEmerge) (err error) {
	onlyFromDisk := q.OnlyFromDisk()
	ctx, span := s.tracer.Start(ctx, "server.emerge", trace.WithAttributes(
		attribute.String("block", q.Pos.String()),
		attribute.Bool("only_from_disk", onlyFromDisk),
		attribute.Int("waiters", len(q.Peers)),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при загрузке блока %s: %v", q.Pos, r)
		}
		if err != nil {
			s.metrics.EmergeFailures.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	block, modified, err := s.m.EmergeBlock(ctx, q.Pos, s.gen, !onlyFromDisk)
	if err != nil {
		if onlyFromDisk && errors.Is(err, world.ErrBlockNotFound) {
			// Заглушка запоминает, что на диске блока нет
			s.m.GetOrCreateBlock(q.Pos)
			return nil
		}
		return err
	}

	if block.LightingExpired() {
		for p := range s.m.UpdateLighting([]vec.Vec3{q.Pos}) {
			modified[p] = struct{}{}
		}
	}
	modified[q.Pos] = struct{}{}
	s.m.ResetUsageTimers(q.Pos)

	// Ждущие и все, у кого были соседи, получат блоки на следующем шаге
	s.forEachClient(func(rc *RemoteClient) {
		rc.SetBlocksNotSent(modified)
	})
	s.metrics.Emerged.Inc()
	return nil
}
