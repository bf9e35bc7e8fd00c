package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mariaPositionsSchema = `CREATE TABLE IF NOT EXISTS voxel_positions (
	player     VARCHAR(20) NOT NULL PRIMARY KEY,
	px         FLOAT       NOT NULL,
	py         FLOAT       NOT NULL,
	pz         FLOAT       NOT NULL,
	pitch      FLOAT       NOT NULL DEFAULT 0,
	yaw        FLOAT       NOT NULL DEFAULT 0,
	saved_at   TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB`

	mariaPositionUpsert = `INSERT INTO voxel_positions (player, px, py, pz, pitch, yaw)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE px = VALUES(px), py = VALUES(py), pz = VALUES(pz),
	pitch = VALUES(pitch), yaw = VALUES(yaw)`

	mariaPositionSelect = `SELECT px, py, pz, pitch, yaw, saved_at FROM voxel_positions WHERE player = ?`
	mariaPositionDelete = `DELETE FROM voxel_positions WHERE player = ?`
)

// MariaPositionRepo позиции игроков в MariaDB/MySQL, одна строка на имя.
// DSN в формате go-sql-driver: user:pass@tcp(host:port)/db?parseTime=true
type MariaPositionRepo struct {
	db *sql.DB
}

func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: разбор DSN: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: нет соединения: %w", err)
	}
	if _, err := db.ExecContext(ctx, mariaPositionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: схема voxel_positions: %w", err)
	}
	return &MariaPositionRepo{db: db}, nil
}

// execer общий для *sql.DB и *sql.Stmt путь записи
type execer interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
}

type dbExecer struct {
	db    *sql.DB
	query string
}

func (e dbExecer) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return e.db.ExecContext(ctx, e.query, args...)
}

func upsertPosition(ctx context.Context, ex execer, pos PlayerPosition) error {
	if err := validatePosition(pos); err != nil {
		return err
	}
	p := pos.Position
	if _, err := ex.ExecContext(ctx, pos.Name, p[0], p[1], p[2], pos.Pitch, pos.Yaw); err != nil {
		return fmt.Errorf("mysql: сохранение позиции %s: %w", pos.Name, err)
	}
	return nil
}

func (r *MariaPositionRepo) Save(ctx context.Context, pos PlayerPosition) error {
	return upsertPosition(ctx, dbExecer{db: r.db, query: mariaPositionUpsert}, pos)
}

func (r *MariaPositionRepo) Load(ctx context.Context, name string) (PlayerPosition, bool, error) {
	pos := PlayerPosition{Name: name}
	p := &pos.Position
	err := r.db.QueryRowContext(ctx, mariaPositionSelect, name).
		Scan(&p[0], &p[1], &p[2], &pos.Pitch, &pos.Yaw, &pos.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return PlayerPosition{}, false, nil
	case err != nil:
		return PlayerPosition{}, false, fmt.Errorf("mysql: загрузка позиции %s: %w", name, err)
	}
	return pos, true, nil
}

func (r *MariaPositionRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, mariaPositionDelete, name)
	if err != nil {
		return fmt.Errorf("mysql: удаление позиции %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return positionNotFound(name)
	}
	return err
}

// BatchSave пишет автосохранение одной транзакцией
func (r *MariaPositionRepo) BatchSave(ctx context.Context, batch []PlayerPosition) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: начало транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, mariaPositionUpsert)
	if err != nil {
		return fmt.Errorf("mysql: подготовка upsert: %w", err)
	}
	defer stmt.Close()

	for _, pos := range batch {
		if err := upsertPosition(ctx, stmt, pos); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *MariaPositionRepo) Close() error {
	return r.db.Close()
}
