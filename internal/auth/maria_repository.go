package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, voxelworld
	Username string // пользователь БД
	Password string // пароль БД
}

// DSN строка подключения для драйвера mysql
func (c MariaConfig) DSN() string {
	host, port, database := c.Host, c.Port, c.Database
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 3306
	}
	if database == "" {
		database = "voxelworld"
	}
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// mysqlDuplicateEntry код ошибки нарушения уникального ключа
const mysqlDuplicateEntry = 1062

// MariaUserRepo реализует UserRepository для MariaDB
type MariaUserRepo struct {
	db *sql.DB
}

// NewMariaUserRepo создает новое подключение к MariaDB и возвращает репозиторий
func NewMariaUserRepo(ctx context.Context, cfg MariaConfig) (*MariaUserRepo, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	repo := &MariaUserRepo{db: db}
	if err := repo.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}
	return repo, nil
}

func (m *MariaUserRepo) createTables(ctx context.Context) error {
	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(32) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		privs BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_login TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`

	if _, err := m.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("не удалось создать таблицу users: %w", err)
	}
	return nil
}

// GetUserByUsername получает пользователя по имени
func (m *MariaUserRepo) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, password_hash, privs, created_at, last_login
			  FROM users WHERE username = ?`

	var user User
	err := m.db.QueryRowContext(ctx, query, normalize(username)).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Privs,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}
	return &user, nil
}

// CreateUser создает нового пользователя
func (m *MariaUserRepo) CreateUser(ctx context.Context, username, passwordHash string, privs Privs) (*User, error) {
	lower := normalize(username)
	now := time.Now()

	query := `INSERT INTO users (username, password_hash, privs, created_at, last_login)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := m.db.ExecContext(ctx, query, lower, passwordHash, uint64(privs), now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("ошибка при создании пользователя: %w", err)
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении ID пользователя: %w", err)
	}

	return &User{
		ID:           uint64(userID),
		Username:     lower,
		PasswordHash: passwordHash,
		Privs:        privs,
		CreatedAt:    now,
		LastLogin:    now,
	}, nil
}

func (m *MariaUserRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m *MariaUserRepo) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return m.exec(ctx, `UPDATE users SET password_hash = ? WHERE username = ?`, passwordHash, normalize(username))
}

func (m *MariaUserRepo) UpdatePrivs(ctx context.Context, username string, privs Privs) error {
	return m.exec(ctx, `UPDATE users SET privs = ? WHERE username = ?`, uint64(privs), normalize(username))
}

// TouchLogin обновляет время последнего входа пользователя
func (m *MariaUserRepo) TouchLogin(ctx context.Context, username string) error {
	return m.exec(ctx, `UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE username = ?`, normalize(username))
}

// Close закрывает подключение к БД
func (m *MariaUserRepo) Close() error {
	return m.db.Close()
}
