package remote_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/tindecisos/internal/app"
	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/docstore/docstoretest"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/remote"
	"github.com/oggyb/tindecisos/internal/server"
	"github.com/oggyb/tindecisos/internal/service/documents"
	"github.com/oggyb/tindecisos/internal/service/identity"
	"github.com/oggyb/tindecisos/internal/session"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// setupServer runs the document and identity services over bufconn against
// a fresh in-memory store and returns a client connection to them.
func setupServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	env := docstoretest.New(t)
	require.NoError(t, db.SeedAccounts(env.DB, []db.SeedAccount{
		{Email: "ana@example.com", Password: "secret"},
		{Email: "eve@example.com", Password: "secret"},
	}, bcrypt.MinCost))

	log := logger.Discard()
	policy := auth.NewPolicy([]string{"ana@example.com"}, []string{"ana@example.com"})
	appCtx := &app.AppContext{
		DB:     env.DB,
		Feed:   env.Feed,
		Store:  env.Store,
		Auth:   auth.NewAuthenticator(env.DB, policy, log),
		Logger: log,
	}

	srv := server.NewGRPCServer(log, documents.NewRegistrar(appCtx), identity.NewRegistrar(appCtx))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cc, err := remote.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestStoreCRUD(t *testing.T) {
	store := remote.NewStore(setupServer(t), logger.Discard())
	ctx := context.Background()
	path := "tindecisos-sessions/ABC123"

	snap, err := store.Get(ctx, path)
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	require.NoError(t, store.Set(ctx, path, map[string]any{
		"creatorId": "u1",
		"joinerId":  nil,
		"items":     []any{map[string]any{"name": "A"}},
		"createdAt": docstore.ServerTimestamp(),
	}))
	require.NoError(t, store.Update(ctx, path, map[string]any{"joinerId": "u2", "player2Index": 1}))

	snap, err = store.Get(ctx, path)
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "u1", snap.Data["creatorId"])
	assert.Equal(t, "u2", snap.Data["joinerId"])
	assert.EqualValues(t, 1, snap.Data["player2Index"])
	assert.NotEqual(t, docstore.ServerTimestamp(), snap.Data["createdAt"])

	err = store.Update(ctx, "tindecisos-sessions/NOPE00", map[string]any{"joinerId": "u2"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, store.Delete(ctx, path))
	snap, err = store.Get(ctx, path)
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestStoreRejectsBadPath(t *testing.T) {
	store := remote.NewStore(setupServer(t), logger.Discard())

	_, err := store.Get(context.Background(), "no-slash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection/id")
}

func TestStoreWatch(t *testing.T) {
	store := remote.NewStore(setupServer(t), logger.Discard())
	ctx := context.Background()
	path := "user-lists/u1"

	rec := &docstoretest.Recorder{}
	cancel, err := store.Watch(ctx, path, rec.Record)
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return len(rec.All()) == 1 }, waitFor, tick)
	first, _ := rec.Last()
	assert.False(t, first.Exists)

	require.NoError(t, store.Set(ctx, path, map[string]any{"categories": []any{"X"}}))
	require.Eventually(t, func() bool {
		last, ok := rec.Last()
		return ok && last.Exists
	}, waitFor, tick)

	require.NoError(t, store.Delete(ctx, path))
	require.Eventually(t, func() bool {
		last, _ := rec.Last()
		return !last.Exists
	}, waitFor, tick)
}

func TestIdentitySignIn(t *testing.T) {
	id := remote.NewIdentity(setupServer(t))
	ctx := context.Background()

	u, err := id.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEmpty(t, u.UID)
	assert.True(t, u.Admin)

	_, err = id.SignIn(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, svcErr.ErrAuthInvalid)

	_, err = id.SignIn(ctx, "eve@example.com", "secret")
	assert.ErrorIs(t, err, svcErr.ErrAuthDenied)
}

// TestSessionOverRemoteStore plays a one-card round between two clients
// that only share the server.
func TestSessionOverRemoteStore(t *testing.T) {
	cc := setupServer(t)
	ctx := context.Background()

	newClient := func(uid string) (*session.Machine, *lists.Repository) {
		store := remote.NewStore(cc, logger.Discard())
		repo := lists.NewRepository(store, uid, logger.Discard())
		require.NoError(t, repo.Start(ctx))
		t.Cleanup(repo.Stop)

		m := session.New(session.Options{
			UserID:     uid,
			Store:      store,
			Lists:      repo,
			Logger:     logger.Discard(),
			SwipeDelay: 20 * time.Millisecond,
			NewCode:    func() (string, error) { return "RMT001", nil },
		})
		t.Cleanup(func() { _ = m.Leave(context.Background()) })
		return m, repo
	}

	creator, creatorLists := newClient("u1")
	joiner, _ := newClient("u2")

	require.NoError(t, creator.CreateSession(ctx))
	require.Eventually(t, func() bool { return creator.State() == session.StateCategorySelection }, waitFor, tick)

	require.NoError(t, creatorLists.CreateCategory(ctx, lists.Private, "Filmes"))
	_, err := creatorLists.AddItem(ctx, lists.Private, "Filmes", lists.NewItem("Amélie", ""))
	require.NoError(t, err)
	require.NoError(t, creator.SelectCategory(ctx, lists.Private, "Filmes"))

	require.NoError(t, joiner.JoinSession(ctx, "rmt001"))
	require.Eventually(t, func() bool { return creator.State() == session.StateSwiping }, waitFor, tick)

	swipe := func(m *session.Machine) {
		require.Eventually(t, func() bool {
			return !errors.Is(m.Swipe(ctx, session.VoteLike), session.ErrSwipeInFlight)
		}, waitFor, tick)
	}
	swipe(creator)
	require.Eventually(t, func() bool {
		doc := joiner.Document()
		return doc != nil && doc.Player1Done
	}, waitFor, tick)
	swipe(joiner)

	for _, m := range []*session.Machine{creator, joiner} {
		require.Eventually(t, func() bool { return m.State() == session.StateResults }, waitFor, tick)
		matches := m.View().Matches
		require.Len(t, matches, 1)
		assert.Equal(t, "Amélie", matches[0].Name)
	}
}
