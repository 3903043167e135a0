package documents

import (
	"google.golang.org/grpc"

	"github.com/oggyb/tindecisos/internal/app"
	pb "github.com/oggyb/tindecisos/internal/proto/documents"
)

// Registrar ties the DocumentStore service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	pb.RegisterDocumentStoreServer(s, NewDocumentService(r.appCtx))
}
