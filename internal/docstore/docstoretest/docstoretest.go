// Package docstoretest wires a real SQLStore against in-memory SQLite and
// miniredis for tests in other packages.
package docstoretest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/tindecisos/internal/config"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/logger"
)

// Env is one isolated store: its own SQLite database and Redis server.
type Env struct {
	DB    *gorm.DB
	Redis *miniredis.Miniredis
	Feed  *docstore.RedisFeed
	Store *docstore.SQLStore
}

// New spins up an in-memory SQLite DB, applies migrations, starts a
// miniredis and wires both into a SQLStore. Everything is torn down with t.
func New(t *testing.T) *Env {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	// one connection keeps the shared in-memory database alive and
	// serializes watcher reads with writes
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	feed := docstore.NewRedisFeed(cfg)
	t.Cleanup(func() { _ = feed.Close() })

	return &Env{
		DB:    database,
		Redis: mr,
		Feed:  feed,
		Store: docstore.NewSQLStore(database, feed, logger.Discard()),
	}
}

// Recorder collects snapshots delivered to a watch callback.
type Recorder struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
}

func (r *Recorder) Record(s docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *Recorder) All() []docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docstore.Snapshot(nil), r.snaps...)
}

func (r *Recorder) Last() (docstore.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return docstore.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

// Op is one call observed by a Spy.
type Op struct {
	Method string
	Path   string
	Fields map[string]any
}

// Spy wraps a Store, records every write and can fail chosen methods.
type Spy struct {
	docstore.Store

	mu   sync.Mutex
	ops  []Op
	fail map[string]error
}

func NewSpy(inner docstore.Store) *Spy {
	return &Spy{Store: inner, fail: map[string]error{}}
}

// FailNext makes every following call of method return err until cleared
// with FailNext(method, nil).
func (s *Spy) FailNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

func (s *Spy) Ops(method string) []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Op
	for _, op := range s.ops {
		if method == "" || op.Method == method {
			out = append(out, op)
		}
	}
	return out
}

func (s *Spy) record(method, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, Op{Method: method, Path: path, Fields: fields})
	return s.fail[method]
}

func (s *Spy) Get(ctx context.Context, path string) (docstore.Snapshot, error) {
	if err := s.record("Get", path, nil); err != nil {
		return docstore.Snapshot{}, err
	}
	return s.Store.Get(ctx, path)
}

func (s *Spy) Set(ctx context.Context, path string, data map[string]any) error {
	if err := s.record("Set", path, data); err != nil {
		return err
	}
	return s.Store.Set(ctx, path, data)
}

func (s *Spy) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := s.record("Update", path, fields); err != nil {
		return err
	}
	return s.Store.Update(ctx, path, fields)
}

func (s *Spy) Delete(ctx context.Context, path string) error {
	if err := s.record("Delete", path, nil); err != nil {
		return err
	}
	return s.Store.Delete(ctx, path)
}
