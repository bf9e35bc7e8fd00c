package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	SetHashCost(bcrypt.MinCost)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("не хэш", "correct horse"))

	_, err = HashPassword(strings.Repeat("x", MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestPrivs(t *testing.T) {
	p := ParsePrivs("build, settime,unknown")
	assert.True(t, p.Has(PrivBuild|PrivSetTime))
	assert.False(t, p.Has(PrivServer))
	assert.Equal(t, "build,settime", p.String())
	assert.Equal(t, PrivAll, ParsePrivs("all"))
}

func TestValidPlayerName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"celeron55", true},
		{"a-b_c", true},
		{"", false},
		{"with space", false},
		{"имя", false},
		{strings.Repeat("x", PlayerNameMaxLen), true},
		{strings.Repeat("x", PlayerNameMaxLen+1), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, ValidPlayerName(tt.name), "имя %q", tt.name)
	}
}

func TestPlayerAuthenticator(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo()
	a := NewPlayerAuthenticator(repo, "", "admin")

	t.Run("первый вход создаёт игрока", func(t *testing.T) {
		user, err := a.Authenticate(ctx, "player1", "secret")
		require.NoError(t, err)
		assert.Equal(t, DefaultPrivs, user.Privs)
		assert.Equal(t, 1, repo.Count())
	})

	t.Run("верный пароль", func(t *testing.T) {
		_, err := a.Authenticate(ctx, "Player1", "secret")
		assert.NoError(t, err, "имя без учёта регистра")
	})

	t.Run("неверный пароль", func(t *testing.T) {
		_, err := a.Authenticate(ctx, "player1", "wrong")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("недопустимое имя", func(t *testing.T) {
		_, err := a.Authenticate(ctx, "bad name", "x")
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.Equal(t, 1, repo.Count(), "запись не создаётся")
	})

	t.Run("администратор", func(t *testing.T) {
		user, err := a.Authenticate(ctx, "admin", "root")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin())
	})

	t.Run("смена пароля", func(t *testing.T) {
		assert.ErrorIs(t, a.ChangePassword(ctx, "player1", "wrong", "new"), ErrWrongPassword)
		require.NoError(t, a.ChangePassword(ctx, "player1", "secret", "new"))

		_, err := a.Authenticate(ctx, "player1", "secret")
		assert.ErrorIs(t, err, ErrWrongPassword, "старый пароль больше не подходит")
		_, err = a.Authenticate(ctx, "player1", "new")
		assert.NoError(t, err)
	})

	t.Run("вход в API", func(t *testing.T) {
		_, err := a.Login(ctx, "player1", "new", PrivServer)
		assert.ErrorIs(t, err, ErrNoPrivilege)
		_, err = a.Login(ctx, "ghost", "x", PrivNone)
		assert.ErrorIs(t, err, ErrWrongPassword)
		user, err := a.Login(ctx, "admin", "root", PrivServer)
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
	})
}

func TestDefaultPassword(t *testing.T) {
	ctx := context.Background()
	a := NewPlayerAuthenticator(NewMemoryUserRepo(), "letmein", "")

	_, err := a.Authenticate(ctx, "newbie", "")
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, "newbie", "letmein")
	assert.NoError(t, err, "пустой пароль заменяется паролем по умолчанию")
}

func TestTokenIssuer(t *testing.T) {
	secret := strings.Repeat("k", 32)
	ti, err := NewTokenIssuer(secret, time.Hour)
	require.NoError(t, err)

	user := &User{ID: 42, Username: "admin", Privs: PrivAll}
	token, expires, err := ti.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "три части JWT")
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := ti.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.PlayerID)
	assert.True(t, claims.Privs.Has(PrivServer))

	t.Run("чужой секрет", func(t *testing.T) {
		other, err := NewTokenIssuer(strings.Repeat("z", 32), time.Hour)
		require.NoError(t, err)
		_, err = other.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("истёкший токен", func(t *testing.T) {
		ti.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { ti.now = time.Now }()
		_, err := ti.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("короткий секрет", func(t *testing.T) {
		_, err := NewTokenIssuer("short", time.Hour)
		assert.Error(t, err)
	})
}
