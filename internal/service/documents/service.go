package documents

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/tindecisos/internal/app"
	"github.com/oggyb/tindecisos/internal/docstore"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	pb "github.com/oggyb/tindecisos/internal/proto/documents"
)

// Service exposes the document store over gRPC. It adds no semantics of its
// own: every call maps onto one docstore.Store operation.
type Service struct {
	appCtx *app.AppContext

	pb.UnimplementedDocumentStoreServer
}

func NewDocumentService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// Get returns the snapshot at path; an absent document is a snapshot with
// exists=false, not an error.
func (s *Service) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path, _, err := parse(req)
	if err != nil {
		return nil, err
	}
	snap, err := s.appCtx.Store.Get(ctx, path)
	if err != nil {
		s.appCtx.Logger.Error("Get failed", "path", path, "err", err)
		return nil, svcErr.Map(err)
	}
	return encode(snap)
}

// Set overwrites the document at path.
func (s *Service) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, data, err := parse(req)
	if err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("Set called", "path", path, "fields", len(data))
	if err := s.appCtx.Store.Set(ctx, path, data); err != nil {
		s.appCtx.Logger.Error("Set failed", "path", path, "err", err)
		return nil, svcErr.Map(err)
	}
	return &emptypb.Empty{}, nil
}

// Update merges top-level fields; NotFound when the document is absent.
func (s *Service) Update(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, data, err := parse(req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, svcErr.InvalidArgument("update needs at least one field")
	}
	s.appCtx.Logger.Debug("Update called", "path", path, "fields", len(data))
	if err := s.appCtx.Store.Update(ctx, path, data); err != nil {
		return nil, svcErr.Map(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) Delete(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, _, err := parse(req)
	if err != nil {
		return nil, err
	}
	if err := s.appCtx.Store.Delete(ctx, path); err != nil {
		s.appCtx.Logger.Error("Delete failed", "path", path, "err", err)
		return nil, svcErr.Map(err)
	}
	return &emptypb.Empty{}, nil
}

// Watch streams the current snapshot and then one per change until the
// client goes away.
func (s *Service) Watch(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	path, _, err := parse(req)
	if err != nil {
		return err
	}
	ctx := stream.Context()

	snaps := make(chan docstore.Snapshot, 8)
	cancel, err := s.appCtx.Store.Watch(ctx, path, func(snap docstore.Snapshot) {
		select {
		case snaps <- snap:
		case <-ctx.Done():
		}
	})
	if err != nil {
		s.appCtx.Logger.Error("Watch failed", "path", path, "err", err)
		return svcErr.Map(err)
	}
	defer cancel()

	s.appCtx.Logger.Debug("Watch started", "path", path)
	for {
		select {
		case <-ctx.Done():
			s.appCtx.Logger.Debug("Watch ended", "path", path)
			return nil
		case snap := <-snaps:
			msg, err := encode(snap)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func parse(req *structpb.Struct) (string, map[string]any, error) {
	path, data, err := pb.ParseRequest(req)
	if err != nil {
		return "", nil, svcErr.InvalidArgument(err.Error())
	}
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return "", nil, svcErr.InvalidArgument("path must be collection/id")
	}
	return path, data, nil
}

func encode(snap docstore.Snapshot) (*structpb.Struct, error) {
	msg, err := pb.SnapshotMessage(snap)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return msg, nil
}
