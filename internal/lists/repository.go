package lists

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oggyb/tindecisos/internal/docstore"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/logger"
)

// PublicPath is the single shared public collection document.
const PublicPath = "app-data/lists"

// PrivatePath is the private collection document of one user.
func PrivatePath(uid string) string { return "user-lists/" + uid }

// Scope selects which collection an operation targets.
type Scope int

const (
	Public Scope = iota
	Private
)

func (s Scope) String() string {
	if s == Private {
		return "private"
	}
	return "public"
}

// ParseScope accepts "public"/"pub" and "private"/"priv".
func ParseScope(v string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "public", "pub":
		return Public, nil
	case "private", "priv":
		return Private, nil
	}
	return Public, fmt.Errorf("unknown list scope %q", v)
}

type scopeState struct {
	coll     Collection
	ready    bool
	observed bool
	cancel   func()

	// rev is the revision of coll; written is the last revision this
	// repository wrote. Snapshots below written predate our own write.
	rev     int64
	written int64
}

// revField stores the collection revision next to categories and lists.
const revField = "rev"

func revision(data map[string]any) int64 {
	switch v := data[revField].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// nextRevLocked stamps fields with the next revision of st.
func (st *scopeState) nextRevLocked(fields map[string]any) {
	st.rev++
	st.written = st.rev
	fields[revField] = st.rev
}

// Repository keeps live copies of the public collection and one user's
// private collection, and writes them back whole on every mutation.
//
// Admin privilege for the public scope is the caller's business.
type Repository struct {
	store   docstore.Store
	ownerID string
	log     *slog.Logger

	mu        sync.RWMutex
	ctx       context.Context
	scopes    [2]*scopeState
	observers []func(Scope, Collection)
}

// NewRepository creates a repository for ownerID's lists.
func NewRepository(store docstore.Store, ownerID string, log *slog.Logger) *Repository {
	if log == nil {
		log = logger.Module("lists")
	}
	return &Repository{
		store:   store,
		ownerID: ownerID,
		log:     log.With("owner", ownerID),
		ctx:     context.Background(),
		scopes:  [2]*scopeState{{coll: NewCollection()}, {coll: NewCollection()}},
	}
}

func (r *Repository) path(s Scope) string {
	if s == Private {
		return PrivatePath(r.ownerID)
	}
	return PublicPath
}

// Start watches both collections. ctx bounds the watches and the seed write.
func (r *Repository) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	for _, s := range []Scope{Public, Private} {
		if err := r.watch(ctx, s); err != nil {
			r.Stop()
			return err
		}
	}
	return nil
}

// Stop cancels the watches. Local copies are kept but no longer ready.
func (r *Repository) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.scopes {
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
		st.ready = false
	}
}

func (r *Repository) watch(ctx context.Context, s Scope) error {
	cancel, err := r.store.Watch(ctx, r.path(s), func(snap docstore.Snapshot) {
		r.onSnapshot(s, snap)
	})
	if err != nil {
		return svcErr.Persistence("watch "+s.String()+" lists", err)
	}

	r.mu.Lock()
	r.scopes[s].cancel = cancel
	r.mu.Unlock()
	return nil
}

// onSnapshot replaces the local copy unless the snapshot was read before
// this repository's last write landed. The first observation of an empty
// public document seeds the built-in defaults and persists them; racing
// seeders write identical documents so the last write is harmless.
func (r *Repository) onSnapshot(s Scope, snap docstore.Snapshot) {
	r.mu.Lock()
	st := r.scopes[s]
	rev := revision(snap.Data)
	if rev < st.written {
		r.log.Debug("ignoring lists snapshot older than own write", "scope", s, "rev", rev, "written", st.written)
		r.mu.Unlock()
		return
	}
	first := !st.observed
	st.observed = true
	st.rev = rev

	var seed bool
	switch {
	case !snap.Exists || len(snap.Data) == 0:
		if s == Public && first {
			st.coll = Defaults()
			seed = true
		} else {
			st.coll = NewCollection()
		}
	default:
		coll, err := DecodeCollection(snap.Data)
		if err != nil {
			r.log.Warn("ignoring undecodable lists document", "scope", s, "err", err)
			st.ready = true
			r.mu.Unlock()
			return
		}
		st.coll = coll
	}
	st.ready = true
	fields := st.coll.Fields()
	if seed {
		st.nextRevLocked(fields)
	}
	view := st.coll.Clone()
	ctx := r.ctx
	r.mu.Unlock()

	if seed {
		r.log.Info("public lists missing, seeding defaults")
		if err := r.persist(ctx, s, fields); err != nil {
			r.log.Error("failed to seed default lists", "err", err)
		}
	}
	r.publish(s, view)
}

// OnChange registers fn to be called with a copy of a collection after every
// local mutation and every observed remote change.
func (r *Repository) OnChange(fn func(Scope, Collection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Repository) publish(s Scope, c Collection) {
	r.mu.RLock()
	observers := append([]func(Scope, Collection){}, r.observers...)
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(s, c)
	}
}

// Ready reports whether both collections have been observed at least once.
func (r *Repository) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scopes[Public].ready && r.scopes[Private].ready
}

// WaitReady blocks until Ready or ctx ends.
func (r *Repository) WaitReady(ctx context.Context) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !r.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (r *Repository) Collection(s Scope) Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scopes[s].coll.Clone()
}

func (r *Repository) Categories(s Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scopes[s].coll.Categories()
}

func (r *Repository) Items(s Scope, category string) ([]Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scopes[s].coll.Items(category)
}

// CreateCategory adds an empty category.
func (r *Repository) CreateCategory(ctx context.Context, s Scope, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return r.mutate(ctx, s, func(c *Collection) error {
		if c.Has(name) {
			return fmt.Errorf("%q: %w", name, ErrAlreadyExists)
		}
		c.put(name, []Item{})
		return nil
	})
}

// AddItem appends item to category, assigning an id when it has none, and
// returns the stored item.
func (r *Repository) AddItem(ctx context.Context, s Scope, category string, item Item) (Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Image = strings.TrimSpace(item.Image)
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	if item.ID == "" {
		item.ID = NewItem(item.Name, item.Image).ID
	}
	err := r.mutate(ctx, s, func(c *Collection) error {
		items, ok := c.lists[category]
		if !ok {
			return fmt.Errorf("%q: %w", category, ErrCategoryNotFound)
		}
		c.lists[category] = append(items, item)
		return nil
	})
	return item, err
}

// EditItem replaces the item at ref. The stored item keeps its id.
func (r *Repository) EditItem(ctx context.Context, s Scope, category string, ref ItemRef, item Item) error {
	item.Name = strings.TrimSpace(item.Name)
	item.Image = strings.TrimSpace(item.Image)
	if err := item.Validate(); err != nil {
		return err
	}
	return r.mutate(ctx, s, func(c *Collection) error {
		items, err := resolve(c, category, ref)
		if err != nil {
			return err
		}
		item.ID = items[ref.Index].ID
		items[ref.Index] = item
		return nil
	})
}

// DeleteItem removes the item at ref, shifting the following items down.
func (r *Repository) DeleteItem(ctx context.Context, s Scope, category string, ref ItemRef) error {
	return r.mutate(ctx, s, func(c *Collection) error {
		items, err := resolve(c, category, ref)
		if err != nil {
			return err
		}
		c.lists[category] = append(items[:ref.Index:ref.Index], items[ref.Index+1:]...)
		return nil
	})
}

// DeleteCategory removes a category and all of its items.
func (r *Repository) DeleteCategory(ctx context.Context, s Scope, name string) error {
	return r.mutate(ctx, s, func(c *Collection) error {
		if !c.Has(name) {
			return fmt.Errorf("%q: %w", name, ErrCategoryNotFound)
		}
		c.remove(name)
		return nil
	})
}

func resolve(c *Collection, category string, ref ItemRef) ([]Item, error) {
	items, ok := c.lists[category]
	if !ok {
		return nil, fmt.Errorf("%q: %w", category, ErrCategoryNotFound)
	}
	if ref.Index < 0 || ref.Index >= len(items) {
		return nil, fmt.Errorf("index %d: %w", ref.Index, ErrItemNotFound)
	}
	if ref.ID != "" && items[ref.Index].ID != ref.ID {
		return nil, fmt.Errorf("index %d: %w", ref.Index, ErrStaleItem)
	}
	return items, nil
}

// mutate applies fn to the local copy, publishes it and writes the whole
// collection under the next revision. A failed write is returned but the
// local change stays. Until the scope has been observed there is nothing to
// apply fn to and ErrNotReady is returned.
func (r *Repository) mutate(ctx context.Context, s Scope, fn func(*Collection) error) error {
	r.mu.Lock()
	st := r.scopes[s]
	if !st.ready {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", s, ErrNotReady)
	}
	if err := fn(&st.coll); err != nil {
		r.mu.Unlock()
		return err
	}
	fields := st.coll.Fields()
	st.nextRevLocked(fields)
	view := st.coll.Clone()
	r.mu.Unlock()

	r.publish(s, view)
	return r.persist(ctx, s, fields)
}

func (r *Repository) persist(ctx context.Context, s Scope, fields map[string]any) error {
	if err := r.store.Set(ctx, r.path(s), fields); err != nil {
		return svcErr.Persistence("save "+s.String()+" lists", err)
	}
	return nil
}
