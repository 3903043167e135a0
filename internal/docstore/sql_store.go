package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/tindecisos/internal/db"
)

var tracer = otel.Tracer("tindecisos/docstore")

// SQLStore keeps documents in the documents table and announces every
// committed write on a Feed.
type SQLStore struct {
	db   *gorm.DB
	feed Feed
	log  *slog.Logger
	now  func() time.Time
}

// NewSQLStore creates a store bound to the given DB connection and feed.
func NewSQLStore(database *gorm.DB, feed Feed, log *slog.Logger) *SQLStore {
	return &SQLStore{
		db:   database,
		feed: feed,
		log:  log,
		now:  time.Now,
	}
}

// Get returns the current snapshot; an absent document is not an error.
func (s *SQLStore) Get(ctx context.Context, path string) (snap Snapshot, err error) {
	ctx, span := s.startSpan(ctx, "Get", path)
	defer func() { endSpan(span, err) }()

	return s.read(s.db.WithContext(ctx), path)
}

// Set overwrites the document at path.
func (s *SQLStore) Set(ctx context.Context, path string, data map[string]any) (err error) {
	ctx, span := s.startSpan(ctx, "Set", path)
	defer func() { endSpan(span, err) }()

	body := cloneFields(data)
	resolveServerTimestamps(body, s.now())
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	doc := db.Document{Path: path, Body: string(raw)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).
		Create(&doc).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	s.notify(ctx, path)
	return nil
}

// Update merges fields into the top level of an existing document.
//
// Behavior:
//   - Nested values are replaced whole, never merged.
//   - A nil value stores JSON null (it does not remove the key).
//   - Read-merge-write runs in one transaction; concurrent updates of
//     disjoint fields both survive, overlapping fields are last-write-wins.
func (s *SQLStore) Update(ctx context.Context, path string, fields map[string]any) (err error) {
	ctx, span := s.startSpan(ctx, "Update", path)
	defer func() { endSpan(span, err) }()

	patch := cloneFields(fields)
	resolveServerTimestamps(patch, s.now())

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var doc db.Document
		if err := q.First(&doc, "path = ?", path).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("update %s: %w", path, ErrNotFound)
			}
			return err
		}

		body := map[string]any{}
		if err := json.Unmarshal([]byte(doc.Body), &body); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		for k, v := range patch {
			body[k] = v
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}

		return tx.Model(&db.Document{}).
			Where("path = ?", path).
			Updates(map[string]any{"body": string(raw), "updated_at": s.now()}).Error
	})
	if err != nil {
		return err
	}

	s.notify(ctx, path)
	return nil
}

// Delete removes the document at path.
func (s *SQLStore) Delete(ctx context.Context, path string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete", path)
	defer func() { endSpan(span, err) }()

	if err := s.db.WithContext(ctx).Delete(&db.Document{}, "path = ?", path).Error; err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	s.notify(ctx, path)
	return nil
}

// Watch delivers the current snapshot and then one snapshot per feed signal
// until cancel is called or ctx ends.
func (s *SQLStore) Watch(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	watchCtx, cancel := context.WithCancel(ctx)

	signals, stop, err := s.feed.Listen(watchCtx, path)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer func() { _ = stop() }()

		deliver := func() bool {
			snap, err := s.read(s.db.WithContext(watchCtx), path)
			if err != nil {
				if watchCtx.Err() == nil {
					s.log.Warn("watch read failed", "path", path, "err", err)
				}
				return watchCtx.Err() == nil
			}
			if watchCtx.Err() != nil {
				return false
			}
			fn(snap)
			return true
		}

		if !deliver() {
			return
		}
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					s.log.Warn("watch feed closed", "path", path)
					return
				}
				if !deliver() {
					return
				}
			}
		}
	}()

	return cancel, nil
}

func (s *SQLStore) read(q *gorm.DB, path string) (Snapshot, error) {
	var doc db.Document
	err := q.First(&doc, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{Path: path}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", path, err)
	}

	data := map[string]any{}
	if err := json.Unmarshal([]byte(doc.Body), &data); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Snapshot{Path: path, Exists: true, Data: data}, nil
}

// notify is best effort: the write is already committed, a lost signal only
// delays watchers until the next change.
func (s *SQLStore) notify(ctx context.Context, path string) {
	if err := s.feed.Notify(ctx, path); err != nil {
		s.log.Warn("change notification failed", "path", path, "err", err)
	}
}

func (s *SQLStore) startSpan(ctx context.Context, op, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "docstore."+op, trace.WithAttributes(attribute.String("doc.path", path)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
