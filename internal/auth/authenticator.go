package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxelworld/internal/logging"
)

// PlayerNameMaxLen максимальная длина имени игрока
const PlayerNameMaxLen = 20

const playerNameAllowedChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

var (
	ErrInvalidName   = errors.New("недопустимое имя игрока")
	ErrWrongPassword = errors.New("неверный пароль")
	ErrNoPrivilege   = errors.New("недостаточно привилегий")
)

// ValidPlayerName проверяет длину и набор символов имени
func ValidPlayerName(name string) bool {
	if name == "" || len(name) > PlayerNameMaxLen {
		return false
	}
	for _, r := range name {
		ok := false
		for _, a := range playerNameAllowedChars {
			if r == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// PlayerAuthenticator проверяет вход игроков. Первый вход с новым
// именем создаёт учётную запись с присланным паролем.
type PlayerAuthenticator struct {
	repo            UserRepository
	defaultPassword string
	defaultPrivs    Privs
	adminName       string
	logger          *logging.Logger
}

// NewPlayerAuthenticator создаёт проверяющего. Игрок с именем
// adminName при создании получает все привилегии.
func NewPlayerAuthenticator(repo UserRepository, defaultPassword, adminName string) *PlayerAuthenticator {
	return &PlayerAuthenticator{
		repo:            repo,
		defaultPassword: defaultPassword,
		defaultPrivs:    DefaultPrivs,
		adminName:       adminName,
		logger:          logging.GetComponentLogger("auth"),
	}
}

// Authenticate пускает игрока или возвращает причину отказа
func (a *PlayerAuthenticator) Authenticate(ctx context.Context, name, password string) (*User, error) {
	if !ValidPlayerName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	user, err := a.repo.GetUserByUsername(ctx, name)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return a.createPlayer(ctx, name, password)
	case err != nil:
		return nil, fmt.Errorf("ошибка поиска игрока %s: %w", name, err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		a.logger.Warn("❌ Неверный пароль игрока %s", name)
		return nil, ErrWrongPassword
	}
	if err := a.repo.TouchLogin(ctx, name); err != nil {
		a.logger.Warn("Не удалось обновить время входа %s: %v", name, err)
	}
	a.logger.Info("✅ Игрок %s вошёл (privs=%s)", name, user.Privs)
	return user, nil
}

func (a *PlayerAuthenticator) createPlayer(ctx context.Context, name, password string) (*User, error) {
	if password == "" {
		password = a.defaultPassword
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	privs := a.defaultPrivs
	if a.adminName != "" && normalize(name) == normalize(a.adminName) {
		privs = PrivAll
	}
	user, err := a.repo.CreateUser(ctx, name, hash, privs)
	if errors.Is(err, ErrUserExists) {
		// Одновременный первый вход с тем же именем
		return a.Authenticate(ctx, name, password)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка создания игрока %s: %w", name, err)
	}
	a.logger.Info("🆕 Создан игрок %s (privs=%s)", name, privs)
	return user, nil
}

// ChangePassword меняет пароль после проверки старого
func (a *PlayerAuthenticator) ChangePassword(ctx context.Context, name, oldPassword, newPassword string) error {
	user, err := a.repo.GetUserByUsername(ctx, name)
	if err != nil {
		return err
	}
	if !CheckPassword(user.PasswordHash, oldPassword) {
		a.logger.Warn("Смена пароля %s: старый пароль неверен", name)
		return ErrWrongPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	if err := a.repo.UpdatePassword(ctx, name, hash); err != nil {
		return err
	}
	a.logger.Info("🔑 Игрок %s сменил пароль", name)
	return nil
}

// Login проверяет пароль без создания записи и требует want привилегий.
// Используется HTTP API.
func (a *PlayerAuthenticator) Login(ctx context.Context, name, password string, want Privs) (*User, error) {
	user, err := a.repo.GetUserByUsername(ctx, name)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrWrongPassword
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrWrongPassword
	}
	if !user.Privs.Has(want) {
		return nil, ErrNoPrivilege
	}
	return user, nil
}

// Privs текущие привилегии игрока, PrivNone для неизвестного
func (a *PlayerAuthenticator) Privs(ctx context.Context, name string) Privs {
	user, err := a.repo.GetUserByUsername(ctx, name)
	if err != nil {
		return PrivNone
	}
	return user.Privs
}
