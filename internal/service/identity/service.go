package identity

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/tindecisos/internal/app"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	pb "github.com/oggyb/tindecisos/internal/proto/identity"
)

// Service implements the Identity gRPC API on top of the server's
// authenticator.
type Service struct {
	appCtx *app.AppContext

	pb.UnimplementedIdentityServer
}

func NewIdentityService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// SignIn answers Unauthenticated for bad credentials and PermissionDenied
// for accounts outside the allow-list.
func (s *Service) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, password := pb.Credentials(req)
	if email == "" || password == "" {
		return nil, svcErr.InvalidArgument("email and password are required")
	}

	u, err := s.appCtx.Auth.SignIn(ctx, email, password)
	if err != nil {
		s.appCtx.Logger.Info("SignIn rejected", "email", email, "err", err)
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("SignIn ok", "uid", u.UID)
	return pb.UserMessage(u.UID, u.Email, u.Admin), nil
}
