package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/tindecisos/internal/docstore"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/logger"
)

var (
	ErrSessionNotFound = svcErr.ErrSessionNotFound
	ErrSessionActive   = errors.New("already in a session, leave it first")
	ErrNoSession       = errors.New("no active session")
	ErrNotSelecting    = errors.New("not choosing a category")
	ErrNotSwiping      = errors.New("session is not in the swiping phase")
	ErrSwipeInFlight   = errors.New("previous swipe still in progress")
	ErrListFinished    = errors.New("no cards left")
	ErrNotFinished     = errors.New("cards left to swipe")
	ErrSessionEnded    = errors.New("the session was closed or no longer exists")
)

// ListSource is what the machine needs from the list repository.
type ListSource interface {
	Ready() bool
	Items(scope lists.Scope, category string) ([]lists.Item, bool)
}

// Options configures a Machine. Zero durations take the defaults.
type Options struct {
	UserID string
	Store  docstore.Store
	Lists  ListSource
	Logger *slog.Logger

	// SwipeDelay is how long the outgoing card stays on screen before the
	// next one is shown if the store has not echoed the vote yet.
	SwipeDelay time.Duration
	// PollInterval paces the wait for the list collections on create.
	PollInterval time.Duration
	// WriteTimeout bounds writes the machine issues on its own (done flag).
	WriteTimeout time.Duration
	// NewCode generates session codes. Defaults to NewCode.
	NewCode func() (string, error)
}

// View is everything a front-end needs to render the current state.
type View struct {
	State       State
	Code        string
	IsCreator   bool
	Category    string
	LobbyStatus string

	// Card is the item at the rendered cursor while swiping, nil once the
	// player has gone through the list.
	Card      *ItemVote
	Cursor    int
	Total     int
	Animating bool
	// Waiting is set when this player is done and the other is not.
	Waiting bool

	Matches []ItemVote
	Err     error
}

type swipeState struct {
	inFlight bool // a vote is being written or its card is animating out
	holding  bool // the outgoing card is still the one rendered
	from     int
	timer    *time.Timer
}

// Machine runs one participant's side of a session. It is the only writer of
// its own seat's fields; the other participant runs its own Machine against
// the same document.
//
// All entry points (intents, store callbacks, timers) are serialized on one
// mutex and run to completion, so the protocol reasons about one event at a
// time. Observers are called after the mutex is released.
type Machine struct {
	store        docstore.Store
	lists        ListSource
	log          *slog.Logger
	userID       string
	newCode      func() (string, error)
	swipeDelay   time.Duration
	pollInterval time.Duration
	writeTimeout time.Duration

	mu        sync.Mutex
	state     State
	code      string
	isCreator bool
	doc       *Document
	gen       uint64
	stopWatch func()
	stopPoll  func()
	swipe     swipeState
	doneSent  bool
	lastErr   error
	queued    []View

	obsMu     sync.Mutex
	observers []func(View)
}

// New creates a machine in StateNoSession.
func New(opts Options) *Machine {
	m := &Machine{
		store:        opts.Store,
		lists:        opts.Lists,
		log:          opts.Logger,
		userID:       opts.UserID,
		newCode:      opts.NewCode,
		swipeDelay:   opts.SwipeDelay,
		pollInterval: opts.PollInterval,
		writeTimeout: opts.WriteTimeout,
	}
	if m.log == nil {
		m.log = logger.Module("session")
	}
	m.log = m.log.With("user", opts.UserID)
	if m.newCode == nil {
		m.newCode = NewCode
	}
	if m.swipeDelay <= 0 {
		m.swipeDelay = 400 * time.Millisecond
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 100 * time.Millisecond
	}
	if m.writeTimeout <= 0 {
		m.writeTimeout = 10 * time.Second
	}
	return m
}

// OnChange registers fn to receive every new view.
func (m *Machine) OnChange(fn func(View)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Document returns a copy of the last known session document, or nil.
func (m *Machine) Document() *Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil
	}
	return m.doc.Clone()
}

// CreateSession starts the creator flow. The category is chosen before any
// document is written; until the list collections are loaded the machine
// waits in StateAwaitingListsReady.
func (m *Machine) CreateSession(ctx context.Context) error {
	return m.run(func() error {
		if m.isCreator && (m.state == StateCategorySelection || m.state == StateAwaitingListsReady) {
			return nil
		}
		if !m.idleLocked() {
			return m.fail(ErrSessionActive)
		}
		m.lastErr = nil
		m.isCreator = true
		if m.lists.Ready() {
			m.state = StateCategorySelection
			return nil
		}
		m.state = StateAwaitingListsReady
		m.startPollLocked()
		return nil
	})
}

// SelectCategory snapshots the category's items into a new session document
// under a fresh code and starts following it.
func (m *Machine) SelectCategory(ctx context.Context, scope lists.Scope, category string) error {
	return m.run(func() error {
		if !m.isCreator || m.state != StateCategorySelection {
			return m.fail(ErrNotSelecting)
		}
		items, ok := m.lists.Items(scope, category)
		if !ok {
			return m.fail(fmt.Errorf("%q: %w", category, lists.ErrCategoryNotFound))
		}
		code, err := m.newCode()
		if err != nil {
			return m.fail(err)
		}
		m.lastErr = nil

		doc := NewDocument(m.userID, category, items)
		if err := m.store.Set(ctx, Path(code), doc.Fields()); err != nil {
			m.log.Error("create session failed", "code", code, "err", err)
			m.resetLocked()
			return m.fail(svcErr.Persistence("create session", err))
		}

		m.code = code
		m.doc = doc
		m.state = Derive(doc, true)
		if err := m.watchLocked(); err != nil {
			m.leaveLocked(ctx, true)
			return m.fail(err)
		}
		m.log.Info("session created", "code", code, "category", category, "items", doc.Len())
		return nil
	})
}

// JoinSession claims the joiner seat of an existing session. Two joiners
// racing on the same code both succeed; the later write wins the seat.
func (m *Machine) JoinSession(ctx context.Context, rawCode string) error {
	return m.run(func() error {
		if !m.idleLocked() {
			return m.fail(ErrSessionActive)
		}
		code, err := ParseCode(rawCode)
		if err != nil {
			return m.fail(err)
		}
		m.lastErr = nil

		snap, err := m.store.Get(ctx, Path(code))
		if err != nil {
			return m.fail(svcErr.Persistence("join session", err))
		}
		if !snap.Exists {
			return m.fail(fmt.Errorf("%s: %w", code, ErrSessionNotFound))
		}
		doc, err := Decode(snap)
		if err != nil {
			return m.fail(err)
		}

		if err := m.store.Update(ctx, Path(code), map[string]any{"joinerId": m.userID}); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return m.fail(fmt.Errorf("%s: %w", code, ErrSessionNotFound))
			}
			return m.fail(svcErr.Persistence("join session", err))
		}

		m.isCreator = false
		m.code = code
		doc.JoinerID = m.userID
		m.doc = doc
		m.state = Derive(doc, false)
		if err := m.watchLocked(); err != nil {
			m.leaveLocked(ctx, true)
			return m.fail(err)
		}
		m.log.Info("joined session", "code", code, "items", doc.Len())
		m.settleLocked()
		return nil
	})
}

// Swipe records v for the card at this player's cursor and advances it.
//
// The whole vote array and the new index go out as one partial update. The
// outgoing card stays rendered until the store echoes the write or
// SwipeDelay passes, whichever is first; a swipe arriving before SwipeDelay
// is rejected with ErrSwipeInFlight. A failed write leaves the cursor where
// it was so the player can retry.
func (m *Machine) Swipe(ctx context.Context, v Vote) error {
	return m.run(func() error {
		if v != VoteLike && v != VoteDislike {
			return m.fail(ErrInvalidVote)
		}
		if m.state != StateSwiping || m.doc == nil {
			return m.fail(ErrNotSwiping)
		}
		if m.swipe.inFlight {
			return ErrSwipeInFlight
		}
		p := PlayerFor(m.isCreator)
		cursor := m.doc.Index(p)
		if cursor >= m.doc.Len() {
			return ErrListFinished
		}
		fields, items, err := SwipeFields(m.doc, p, v)
		if err != nil {
			return m.fail(err)
		}
		m.lastErr = nil

		m.swipe.inFlight = true
		if err := m.store.Update(ctx, Path(m.code), fields); err != nil {
			m.swipe.inFlight = false
			m.log.Error("save vote failed", "code", m.code, "index", cursor, "err", err)
			return m.fail(svcErr.Persistence("save vote", err))
		}

		// the store acknowledged the write: it is confirmed state now
		m.doc.ItemsWithVotes = items
		m.doc.setIndex(p, cursor+1)
		m.swipe.holding = true
		m.swipe.from = cursor
		gen := m.gen
		m.swipe.timer = time.AfterFunc(m.swipeDelay, func() { m.afterSwipe(gen) })
		return nil
	})
}

// MarkDone sets this player's done flag once its cursor is at the end. It
// writes nothing when the flag is already set in the last known document or
// was already written by this machine.
func (m *Machine) MarkDone(ctx context.Context) error {
	return m.run(func() error {
		if m.code == "" || m.doc == nil {
			return m.fail(ErrNoSession)
		}
		return m.markDoneLocked(ctx)
	})
}

// Leave ends local participation. The watch is cancelled before the leave
// write so this client never reacts to its own teardown. The creator deletes
// the document; a joiner only clears joinerId, handing the session back to
// the creator's lobby. Remote failures are logged, the local state is reset
// regardless.
func (m *Machine) Leave(ctx context.Context) error {
	return m.run(func() error {
		m.leaveLocked(ctx, true)
		m.lastErr = nil
		return nil
	})
}

func (m *Machine) onSnapshot(gen uint64, snap docstore.Snapshot) {
	_ = m.run(func() error {
		if gen != m.gen || m.code == "" {
			return nil
		}
		if !snap.Exists {
			m.log.Warn("session document disappeared", "code", m.code)
			m.lastErr = ErrSessionEnded
			m.state = StateTerminated
			m.queued = append(m.queued, m.viewLocked())
			m.leaveLocked(context.Background(), false)
			return nil
		}

		doc, err := Decode(snap)
		if err != nil {
			m.log.Warn("ignoring undecodable session snapshot", "code", m.code, "err", err)
			return nil
		}
		if err := doc.Validate(); err != nil {
			m.log.Warn("session snapshot breaks invariants", "code", m.code, "err", err)
		}

		p := PlayerFor(m.isCreator)
		if m.doc != nil && doc.Index(p) < m.doc.Index(p) {
			// read before our acknowledged write landed; a newer snapshot follows
			return nil
		}

		prev := m.state
		m.doc = doc
		m.state = Derive(doc, m.isCreator)
		if m.state == StateSwiping && prev != StateSwiping {
			m.swipe.holding = false
		}
		if m.swipe.holding && doc.Index(p) > m.swipe.from {
			m.swipe.holding = false
		}
		m.settleLocked()
		return nil
	})
}

func (m *Machine) afterSwipe(gen uint64) {
	_ = m.run(func() error {
		if gen != m.gen {
			return nil
		}
		m.swipe.inFlight = false
		m.swipe.holding = false
		m.swipe.timer = nil
		m.settleLocked()
		return nil
	})
}

// settleLocked marks this player done when the rendered cursor has reached
// the end of the list.
func (m *Machine) settleLocked() {
	if m.state != StateSwiping || m.doc == nil || m.swipe.holding || m.doneSent {
		return
	}
	p := PlayerFor(m.isCreator)
	if m.doc.Index(p) < m.doc.Len() || m.doc.Done(p) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
	defer cancel()
	_ = m.markDoneLocked(ctx)
}

func (m *Machine) markDoneLocked(ctx context.Context) error {
	p := PlayerFor(m.isCreator)
	if m.doc.Done(p) || m.doneSent {
		return nil
	}
	if m.doc.Index(p) < m.doc.Len() {
		return ErrNotFinished
	}
	if err := m.store.Update(ctx, Path(m.code), map[string]any{p.DoneField(): true}); err != nil {
		m.log.Error("mark done failed", "code", m.code, "err", err)
		return m.fail(svcErr.Persistence("mark done", err))
	}
	m.doneSent = true
	m.doc.setDone(p)
	m.state = Derive(m.doc, m.isCreator)
	return nil
}

func (m *Machine) watchLocked() error {
	m.gen++
	gen := m.gen
	cancel, err := m.store.Watch(context.Background(), Path(m.code), func(s docstore.Snapshot) {
		m.onSnapshot(gen, s)
	})
	if err != nil {
		return svcErr.Persistence("watch session", err)
	}
	m.stopWatch = cancel
	return nil
}

func (m *Machine) startPollLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.stopPoll = cancel
	go func() {
		t := time.NewTicker(m.pollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			if !m.lists.Ready() {
				continue
			}
			_ = m.run(func() error {
				// cancelled while waiting for the lock: a newer poll may own stopPoll
				if ctx.Err() != nil {
					return nil
				}
				if m.state == StateAwaitingListsReady {
					m.state = StateCategorySelection
				}
				m.stopPollLocked()
				return nil
			})
			return
		}
	}()
}

func (m *Machine) stopPollLocked() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

func (m *Machine) leaveLocked(ctx context.Context, remote bool) {
	m.gen++
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	m.stopPollLocked()
	if m.swipe.timer != nil {
		m.swipe.timer.Stop()
	}

	if remote && m.code != "" && m.doc != nil {
		path := Path(m.code)
		var err error
		if m.isCreator {
			err = m.store.Delete(ctx, path)
		} else {
			err = m.store.Update(ctx, path, map[string]any{"joinerId": nil})
		}
		if err != nil {
			m.log.Warn("leave write failed", "code", m.code, "creator", m.isCreator, "err", err)
		}
	}
	if m.code != "" {
		m.log.Info("left session", "code", m.code, "creator", m.isCreator, "remote", remote)
	}
	m.resetLocked()
}

func (m *Machine) resetLocked() {
	m.state = StateNoSession
	m.code = ""
	m.isCreator = false
	m.doc = nil
	m.swipe = swipeState{}
	m.doneSent = false
}

func (m *Machine) idleLocked() bool {
	return m.code == "" && (m.state == StateNoSession || m.state == StateTerminated)
}

func (m *Machine) fail(err error) error {
	m.lastErr = err
	return err
}

func (m *Machine) viewLocked() View {
	v := View{State: m.state, Code: m.code, IsCreator: m.isCreator, Err: m.lastErr}
	if m.doc == nil {
		return v
	}
	v.Category = m.doc.CategoryName
	v.Total = m.doc.Len()

	switch m.state {
	case StateLobby:
		if m.isCreator {
			v.LobbyStatus = "Waiting for another player to join..."
		} else {
			v.LobbyStatus = "Waiting for the session to resume..."
		}
	case StateSwiping:
		cursor := m.doc.Index(PlayerFor(m.isCreator))
		if m.swipe.holding {
			cursor = m.swipe.from
		}
		v.Cursor = cursor
		v.Animating = m.swipe.inFlight
		if cursor < v.Total {
			card := m.doc.ItemsWithVotes[cursor]
			v.Card = &card
		} else {
			v.Waiting = true
		}
	case StateResults:
		v.Cursor = v.Total
		v.Matches = Matches(m.doc)
	}
	return v
}

// run executes fn under the machine lock and then publishes the resulting
// view (preceded by any views fn queued).
func (m *Machine) run(fn func() error) error {
	m.mu.Lock()
	err := fn()
	views := append(m.queued, m.viewLocked())
	m.queued = nil
	m.mu.Unlock()

	m.obsMu.Lock()
	observers := append([]func(View){}, m.observers...)
	m.obsMu.Unlock()
	for _, v := range views {
		for _, fn := range observers {
			fn(v)
		}
	}
	return err
}
