// Package remote implements the store and identity collaborators on top of
// a gRPC connection to the tindecisos server.
package remote

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/tindecisos/internal/docstore"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	pb "github.com/oggyb/tindecisos/internal/proto/documents"
)

// Store is a docstore.Store backed by the DocumentStore service.
type Store struct {
	client pb.DocumentStoreClient
	log    *slog.Logger

	// retry is the pause before a broken watch stream is reopened.
	retry time.Duration
}

var _ docstore.Store = (*Store)(nil)

func NewStore(cc grpc.ClientConnInterface, log *slog.Logger) *Store {
	return &Store{client: pb.NewDocumentStoreClient(cc), log: log, retry: time.Second}
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	msg, err := s.client.Get(ctx, pb.PathRequest(path))
	if err != nil {
		return docstore.Snapshot{}, svcErr.FromStatus(err)
	}
	return pb.ParseSnapshot(msg), nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any) error {
	req, err := pb.WriteRequest(path, data)
	if err != nil {
		return err
	}
	_, err = s.client.Set(ctx, req)
	return svcErr.FromStatus(err)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	req, err := pb.WriteRequest(path, fields)
	if err != nil {
		return err
	}
	_, err = s.client.Update(ctx, req)
	return svcErr.FromStatus(err)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.Delete(ctx, pb.PathRequest(path))
	return svcErr.FromStatus(err)
}

// Watch opens a Watch stream and feeds fn from a goroutine. If the stream
// breaks it is reopened after a pause; the server then sends the current
// snapshot again, so fn may see the same state twice.
func (s *Store) Watch(ctx context.Context, path string, fn func(docstore.Snapshot)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)

	stream, err := s.client.Watch(watchCtx, pb.PathRequest(path))
	if err != nil {
		cancel()
		return nil, svcErr.FromStatus(err)
	}

	go func() {
		for {
			s.drain(watchCtx, path, stream, fn)

			select {
			case <-watchCtx.Done():
				return
			case <-time.After(s.retry):
			}
			stream, err = s.client.Watch(watchCtx, pb.PathRequest(path))
			if err != nil {
				if watchCtx.Err() == nil {
					s.log.Warn("reopen watch failed", "path", path, "err", err)
				}
				stream = nil
			}
		}
	}()

	return cancel, nil
}

func (s *Store) drain(ctx context.Context, path string, stream grpc.ServerStreamingClient[structpb.Struct], fn func(docstore.Snapshot)) {
	if stream == nil {
		return
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("watch stream broke", "path", path, "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		fn(pb.ParseSnapshot(msg))
	}
}
