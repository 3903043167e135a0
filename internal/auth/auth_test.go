package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore/docstoretest"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/logger"
)

func setupAccounts(t *testing.T) *gorm.DB {
	t.Helper()
	env := docstoretest.New(t)
	require.NoError(t, db.SeedAccounts(env.DB, []db.SeedAccount{
		{Email: "ana@example.com", Password: "secret"},
		{Email: "Bruno@Example.com", Password: "hunter2"},
		{Email: "carla@example.com", Password: "pw"},
	}, bcrypt.MinCost))
	return env.DB
}

func TestPolicy(t *testing.T) {
	adminsOnly := auth.NewPolicy(nil, []string{"boss@example.com"})
	assert.False(t, adminsOnly.Open())
	assert.False(t, adminsOnly.Allows("stranger@example.com"))
	assert.True(t, adminsOnly.Allows("Boss@example.com"))
	assert.True(t, adminsOnly.IsAdmin(" BOSS@example.com "))
	assert.False(t, adminsOnly.IsAdmin("anyone@example.com"))

	assert.False(t, auth.NewPolicy(nil, nil).Allows("stranger@example.com"))

	closed := auth.NewPolicy([]string{"ana@example.com"}, []string{"boss@example.com"})
	assert.True(t, closed.Allows("Ana@Example.com"))
	assert.True(t, closed.Allows("boss@example.com"), "admins are always admitted")
	assert.False(t, closed.Allows("eve@example.com"))
	assert.True(t, closed.Open())
}

func TestAuthenticatorSignIn(t *testing.T) {
	gdb := setupAccounts(t)
	policy := auth.NewPolicy([]string{"ana@example.com", "bruno@example.com"}, []string{"bruno@example.com"})
	a := auth.NewAuthenticator(gdb, policy, logger.Discard())
	ctx := context.Background()

	u, err := a.SignIn(ctx, " ANA@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEmpty(t, u.UID)
	assert.False(t, u.Admin)

	again, err := a.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.UID, again.UID, "uid is stable")

	var account db.Account
	require.NoError(t, gdb.Where("email = ?", "ana@example.com").First(&account).Error)
	assert.NotNil(t, account.LastLoginAt)

	admin, err := a.SignIn(ctx, "bruno@example.com", "hunter2")
	require.NoError(t, err)
	assert.True(t, admin.Admin)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"wrong password", "ana@example.com", "nope", svcErr.ErrAuthInvalid},
		{"unknown email", "zed@example.com", "secret", svcErr.ErrAuthInvalid},
		{"empty", "", "", svcErr.ErrAuthInvalid},
		{"not allowed", "carla@example.com", "pw", svcErr.ErrAuthDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.SignIn(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthenticatorInactiveAccount(t *testing.T) {
	gdb := setupAccounts(t)
	require.NoError(t, gdb.Model(&db.Account{}).Where("email = ?", "ana@example.com").Update("active", false).Error)

	a := auth.NewAuthenticator(gdb, auth.NewPolicy([]string{"ana@example.com"}, nil), logger.Discard())
	_, err := a.SignIn(context.Background(), "ana@example.com", "secret")
	assert.ErrorIs(t, err, svcErr.ErrAuthInvalid)
}

func TestSessionNotifiesChanges(t *testing.T) {
	gdb := setupAccounts(t)
	s := auth.NewSession(auth.NewAuthenticator(gdb, auth.NewPolicy([]string{"ana@example.com"}, nil), logger.Discard()))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*auth.User
	s.OnAuthChange(func(u *auth.User) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, u)
	})

	_, ok := s.Current()
	assert.False(t, ok)

	_, err := s.SignIn(ctx, "ana@example.com", "bad")
	assert.ErrorIs(t, err, svcErr.ErrAuthInvalid)

	u, err := s.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, u, cur)

	s.SignOut()
	s.SignOut()
	_, ok = s.Current()
	assert.False(t, ok)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, "ana@example.com", seen[0].Email)
	assert.Nil(t, seen[1])
}
