package remote

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/tindecisos/internal/auth"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	pb "github.com/oggyb/tindecisos/internal/proto/identity"
)

// Identity is an auth.Backend that signs in through the server.
type Identity struct {
	client pb.IdentityClient
}

var _ auth.Backend = (*Identity)(nil)

func NewIdentity(cc grpc.ClientConnInterface) *Identity {
	return &Identity{client: pb.NewIdentityClient(cc)}
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (auth.User, error) {
	msg, err := i.client.SignIn(ctx, pb.SignInRequest(email, password))
	if err != nil {
		return auth.User{}, svcErr.FromStatus(err)
	}
	uid, mail, admin := pb.ParseUser(msg)
	return auth.User{UID: uid, Email: mail, Admin: admin}, nil
}
