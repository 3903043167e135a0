package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/tindecisos/internal/app"
	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore/docstoretest"
	"github.com/oggyb/tindecisos/internal/logger"
	pb "github.com/oggyb/tindecisos/internal/proto/identity"
	"github.com/oggyb/tindecisos/internal/service/identity"
)

func TestSignIn(t *testing.T) {
	env := docstoretest.New(t)
	require.NoError(t, db.SeedAccounts(env.DB, []db.SeedAccount{
		{Email: "ana@example.com", Password: "secret"},
		{Email: "eve@example.com", Password: "secret"},
	}, bcrypt.MinCost))

	log := logger.Discard()
	policy := auth.NewPolicy([]string{"ana@example.com"}, nil)
	svc := identity.NewIdentityService(&app.AppContext{
		DB:     env.DB,
		Auth:   auth.NewAuthenticator(env.DB, policy, log),
		Logger: log,
	})
	ctx := context.Background()

	msg, err := svc.SignIn(ctx, pb.SignInRequest("ana@example.com", "secret"))
	require.NoError(t, err)
	uid, email, admin := pb.ParseUser(msg)
	assert.NotEmpty(t, uid)
	assert.Equal(t, "ana@example.com", email)
	assert.False(t, admin)

	tests := []struct {
		name     string
		email    string
		password string
		want     codes.Code
	}{
		{"missing password", "ana@example.com", "", codes.InvalidArgument},
		{"wrong password", "ana@example.com", "nope", codes.Unauthenticated},
		{"not allowed", "eve@example.com", "secret", codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignIn(ctx, pb.SignInRequest(tt.email, tt.password))
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}
