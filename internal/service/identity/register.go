package identity

import (
	"google.golang.org/grpc"

	"github.com/oggyb/tindecisos/internal/app"
	pb "github.com/oggyb/tindecisos/internal/proto/identity"
)

// Registrar ties the Identity service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	pb.RegisterIdentityServer(s, NewIdentityService(r.appCtx))
}
