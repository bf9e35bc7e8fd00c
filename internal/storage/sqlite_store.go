package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/annel0/voxelworld/internal/vec"
)

// SQLiteStore хранит блоки в одной таблице sqlite. Удобен для
// переноса карты одним файлом.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore открывает файл базы, создавая схему при необходимости
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("пустой путь к базе sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть sqlite: %w", err)
	}
	// Один писатель, иначе SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ошибка настройки sqlite: %w", err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS blocks (
			x    INTEGER NOT NULL,
			y    INTEGER NOT NULL,
			z    INTEGER NOT NULL,
			data BLOB    NOT NULL,
			PRIMARY KEY (x, y, z)
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания таблицы blocks: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveBlock записывает блок, заменяя прежнюю версию
func (s *SQLiteStore) SaveBlock(ctx context.Context, pos vec.Vec3, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocks (x, y, z, data) VALUES (?, ?, ?, ?)`,
		pos.X, pos.Y, pos.Z, data)
	if err != nil {
		return fmt.Errorf("ошибка сохранения блока %v: %w", pos, err)
	}
	return nil
}

// LoadBlock читает блок
func (s *SQLiteStore) LoadBlock(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blocks WHERE x = ? AND y = ? AND z = ?`,
		pos.X, pos.Y, pos.Z).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка загрузки блока %v: %w", pos, err)
	}
	return data, true, nil
}

// DeleteBlock удаляет блок
func (s *SQLiteStore) DeleteBlock(ctx context.Context, pos vec.Vec3) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM blocks WHERE x = ? AND y = ? AND z = ?`, pos.X, pos.Y, pos.Z)
	return err
}

// ListBlocks возвращает позиции всех блоков
func (s *SQLiteStore) ListBlocks(ctx context.Context) ([]vec.Vec3, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, z FROM blocks ORDER BY x, y, z`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vec.Vec3
	for rows.Next() {
		var p vec.Vec3
		if err := rows.Scan(&p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close закрывает базу
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
