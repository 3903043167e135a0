package documents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/tindecisos/internal/app"
	"github.com/oggyb/tindecisos/internal/docstore/docstoretest"
	"github.com/oggyb/tindecisos/internal/logger"
	pb "github.com/oggyb/tindecisos/internal/proto/documents"
	"github.com/oggyb/tindecisos/internal/service/documents"
)

// setupService wires the service to a fresh in-memory store.
func setupService(t *testing.T) *documents.Service {
	t.Helper()
	env := docstoretest.New(t)
	return documents.NewDocumentService(&app.AppContext{
		DB:     env.DB,
		Feed:   env.Feed,
		Store:  env.Store,
		Logger: logger.Discard(),
	})
}

func write(t *testing.T, path string, data map[string]any) *structpb.Struct {
	t.Helper()
	req, err := pb.WriteRequest(path, data)
	require.NoError(t, err)
	return req
}

func TestSetGetUpdateDelete(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	path := "app-data/lists"

	_, err := svc.Set(ctx, write(t, path, map[string]any{"categories": []string{"Hobbies"}, "n": 1}))
	require.NoError(t, err)

	_, err = svc.Update(ctx, write(t, path, map[string]any{"n": 2}))
	require.NoError(t, err)

	msg, err := svc.Get(ctx, pb.PathRequest(path))
	require.NoError(t, err)
	snap := pb.ParseSnapshot(msg)
	require.True(t, snap.Exists)
	assert.Equal(t, []any{"Hobbies"}, snap.Data["categories"])
	assert.EqualValues(t, 2, snap.Data["n"])

	_, err = svc.Delete(ctx, pb.PathRequest(path))
	require.NoError(t, err)
	msg, err = svc.Get(ctx, pb.PathRequest(path))
	require.NoError(t, err)
	assert.False(t, pb.ParseSnapshot(msg).Exists)
}

func TestUpdateErrors(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, write(t, "tindecisos-sessions/ZZZ999", map[string]any{"joinerId": "u2"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.Update(ctx, pb.PathRequest("tindecisos-sessions/ZZZ999"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInvalidPaths(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, path := range []string{"", "lists", "/x", "a/", "a/b/c"} {
		_, err := svc.Get(ctx, pb.PathRequest(path))
		assert.Equal(t, codes.InvalidArgument, status.Code(err), path)
	}
}
