package auth

import (
	"errors"

	"go.uber.org/atomic"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLen предел bcrypt: байты дальше 72-го не участвуют в хэше
const MaxPasswordLen = 72

var ErrPasswordTooLong = errors.New("пароль длиннее 72 байт")

// Стоимость новых хэшей; старые проверяются со своей
var hashCost = atomic.NewInt32(int32(bcrypt.DefaultCost))

// SetHashCost значения вне [MinCost, MaxCost] сбрасывают к DefaultCost.
// Тесты ставят MinCost.
func SetHashCost(cost int) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashCost.Store(int32(cost))
}

func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLen {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(hashCost.Load()))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword false и для битого хэша, и для неверного пароля
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
