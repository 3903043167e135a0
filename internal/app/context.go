package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/logger"
)

// AppContext holds shared server dependencies (DB, change feed, store,
// authenticator, logger).
type AppContext struct {
	DB     *gorm.DB
	Feed   *docstore.RedisFeed
	Store  docstore.Store
	Auth   auth.Backend
	Logger *slog.Logger
}

// New creates a new AppContext. The document store is built on db and feed.
func New(db *gorm.DB, feed *docstore.RedisFeed, authenticator auth.Backend, log *slog.Logger) *AppContext {
	return &AppContext{
		DB:     db,
		Feed:   feed,
		Store:  docstore.NewSQLStore(db, feed, logger.ModuleOf(log, "docstore")),
		Auth:   authenticator,
		Logger: logger.ModuleOf(log, "rpc"),
	}
}
