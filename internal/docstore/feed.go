package docstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/tindecisos/internal/config"
)

// Feed carries "document changed" signals between store instances.
// Signals carry no payload: listeners re-read the document, so a burst of
// writes may be observed as fewer snapshots but never as a stale one.
type Feed interface {
	Notify(ctx context.Context, path string) error
	Listen(ctx context.Context, path string) (signals <-chan struct{}, stop func() error, err error)
}

// RedisFeed implements Feed with Redis pub/sub, one channel per document.
type RedisFeed struct {
	Client *redis.Client
}

// NewRedisFeed initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisFeed(cfg *config.Config) *RedisFeed {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisFeed{Client: redis.NewClient(opts)}
}

func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.Client.Ping(ctx).Err()
}

func (f *RedisFeed) Close() error {
	return f.Client.Close()
}

// ChannelFor generates the pub/sub channel name of a document path.
func (f *RedisFeed) ChannelFor(path string) string {
	return fmt.Sprintf("docs:changed:%s", path)
}

func (f *RedisFeed) Notify(ctx context.Context, path string) error {
	return f.Client.Publish(ctx, f.ChannelFor(path), path).Err()
}

// Listen subscribes to the document's channel. The subscription is confirmed
// before Listen returns, so any write committed afterwards is signalled.
func (f *RedisFeed) Listen(ctx context.Context, path string) (<-chan struct{}, func() error, error) {
	ps := f.Client.Subscribe(ctx, f.ChannelFor(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	signals := make(chan struct{}, 1)
	msgs := ps.Channel()
	go func() {
		defer close(signals)
		for range msgs {
			// coalesce: one pending signal is enough to trigger a re-read
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()

	return signals, ps.Close, nil
}
