package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/docstore/docstoretest"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/session"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
	code    = "ABC123"
)

var errBoom = errors.New("boom")

type fakeLists struct {
	ready atomic.Bool
	items map[string][]lists.Item
}

func newFakeLists(ready bool) *fakeLists {
	f := &fakeLists{items: map[string][]lists.Item{
		"Comidas": threeItems(),
		"Vazia":   {},
	}}
	f.ready.Store(ready)
	return f
}

func (f *fakeLists) Ready() bool { return f.ready.Load() }

func (f *fakeLists) Items(_ lists.Scope, category string) ([]lists.Item, bool) {
	it, ok := f.items[category]
	return append([]lists.Item(nil), it...), ok
}

type viewLog struct {
	mu    sync.Mutex
	views []session.View
}

func (l *viewLog) record(v session.View) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog) sawState(s session.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range l.views {
		if v.State == s {
			return true
		}
	}
	return false
}

type player struct {
	*session.Machine
	spy   *docstoretest.Spy
	views *viewLog
}

func newPlayer(t *testing.T, store docstore.Store, uid string, src session.ListSource, delay time.Duration) *player {
	t.Helper()
	spy := docstoretest.NewSpy(store)
	m := session.New(session.Options{
		UserID:       uid,
		Store:        spy,
		Lists:        src,
		Logger:       logger.Discard(),
		SwipeDelay:   delay,
		PollInterval: 10 * time.Millisecond,
		NewCode:      func() (string, error) { return code, nil },
	})
	views := &viewLog{}
	m.OnChange(views.record)
	t.Cleanup(func() { _ = m.Leave(context.Background()) })
	return &player{Machine: m, spy: spy, views: views}
}

func (p *player) waitState(t *testing.T, s session.State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == s }, waitFor, tick,
		"want %s, have %s", s, p.State())
}

// swipe retries while the previous card is still animating out.
func (p *player) swipe(t *testing.T, v session.Vote) {
	t.Helper()
	var err error
	require.Eventually(t, func() bool {
		err = p.Swipe(context.Background(), v)
		return !errors.Is(err, session.ErrSwipeInFlight)
	}, waitFor, tick)
	require.NoError(t, err)
}

func stored(t *testing.T, store docstore.Store) (*session.Document, bool) {
	t.Helper()
	snap, err := store.Get(context.Background(), session.Path(code))
	require.NoError(t, err)
	if !snap.Exists {
		return nil, false
	}
	doc, err := session.Decode(snap)
	require.NoError(t, err)
	return doc, true
}

func createSession(t *testing.T, p *player) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.CreateSession(ctx))
	p.waitState(t, session.StateCategorySelection)
	require.NoError(t, p.SelectCategory(ctx, lists.Public, "Comidas"))
	p.waitState(t, session.StateLobby)
}

func startMatch(t *testing.T, delay time.Duration) (env *docstoretest.Env, creator, joiner *player) {
	t.Helper()
	env = docstoretest.New(t)
	src := newFakeLists(true)
	creator = newPlayer(t, env.Store, "u1", src, delay)
	joiner = newPlayer(t, env.Store, "u2", src, delay)

	createSession(t, creator)
	require.NoError(t, joiner.JoinSession(context.Background(), code))
	creator.waitState(t, session.StateSwiping)
	joiner.waitState(t, session.StateSwiping)
	return env, creator, joiner
}

func TestCreateSessionWritesSnapshot(t *testing.T) {
	env := docstoretest.New(t)
	creator := newPlayer(t, env.Store, "u1", newFakeLists(true), 20*time.Millisecond)

	createSession(t, creator)

	doc, ok := stored(t, env.Store)
	require.True(t, ok)
	assert.Equal(t, "u1", doc.CreatorID)
	assert.Empty(t, doc.JoinerID)
	assert.Equal(t, "Comidas", doc.CategoryName)
	assert.False(t, doc.CreatedAt.IsZero(), "createdAt is stamped by the store")
	require.Len(t, doc.ItemsWithVotes, 3)
	for _, iv := range doc.ItemsWithVotes {
		assert.Equal(t, session.VoteNone, iv.P1Vote)
		assert.Equal(t, session.VoteNone, iv.P2Vote)
	}
	assert.Zero(t, doc.Player1Index)
	assert.Zero(t, doc.Player2Index)
	assert.False(t, doc.Player1Done || doc.Player2Done)

	view := creator.View()
	assert.Equal(t, code, view.Code)
	assert.True(t, view.IsCreator)
	assert.NotEmpty(t, view.LobbyStatus)
	assert.ErrorIs(t, creator.CreateSession(context.Background()), session.ErrSessionActive)
}

func TestCreateSessionWaitsForLists(t *testing.T) {
	env := docstoretest.New(t)
	src := newFakeLists(false)
	creator := newPlayer(t, env.Store, "u1", src, 20*time.Millisecond)

	require.NoError(t, creator.CreateSession(context.Background()))
	assert.Equal(t, session.StateAwaitingListsReady, creator.State())
	assert.ErrorIs(t, creator.SelectCategory(context.Background(), lists.Public, "Comidas"), session.ErrNotSelecting)

	src.ready.Store(true)
	creator.waitState(t, session.StateCategorySelection)
	assert.Empty(t, creator.spy.Ops(""), "nothing is written before a category is picked")
}

// gatedLists holds one armed Ready call until released, then reports ready.
type gatedLists struct {
	*fakeLists
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLists) Ready() bool {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
		return true
	}
	return g.fakeLists.Ready()
}

// TestLatePollFromLeftSessionIsIgnored recreates a session while the poll of
// the previous one is still in flight; the old poll must not stop the new one.
func TestLatePollFromLeftSessionIsIgnored(t *testing.T) {
	env := docstoretest.New(t)
	src := &gatedLists{fakeLists: newFakeLists(false), entered: make(chan struct{}), release: make(chan struct{})}
	creator := newPlayer(t, env.Store, "u1", src, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, creator.CreateSession(ctx))
	src.armed.Store(true)
	select {
	case <-src.entered:
	case <-time.After(waitFor):
		t.Fatal("poll never checked the lists")
	}

	require.NoError(t, creator.Leave(ctx))
	require.NoError(t, creator.CreateSession(ctx))
	assert.Equal(t, session.StateAwaitingListsReady, creator.State())
	close(src.release)

	src.ready.Store(true)
	creator.waitState(t, session.StateCategorySelection)
}

func TestSelectCategoryFailures(t *testing.T) {
	env := docstoretest.New(t)
	creator := newPlayer(t, env.Store, "u1", newFakeLists(true), 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, creator.CreateSession(ctx))
	err := creator.SelectCategory(ctx, lists.Public, "Nope")
	assert.ErrorIs(t, err, lists.ErrCategoryNotFound)
	assert.Equal(t, session.StateCategorySelection, creator.State())

	creator.spy.FailNext("Set", errBoom)
	err = creator.SelectCategory(ctx, lists.Public, "Comidas")
	assert.ErrorIs(t, err, svcErr.ErrPersistence)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, session.StateNoSession, creator.State())
	assert.ErrorIs(t, creator.View().Err, svcErr.ErrPersistence)
}

func TestJoinSessionErrors(t *testing.T) {
	env := docstoretest.New(t)
	joiner := newPlayer(t, env.Store, "u2", newFakeLists(true), 20*time.Millisecond)
	ctx := context.Background()

	err := joiner.JoinSession(ctx, "ZZZ999")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Equal(t, session.StateNoSession, joiner.State())

	assert.ErrorIs(t, joiner.JoinSession(ctx, "nope"), session.ErrInvalidCode)

	joiner.spy.FailNext("Get", errBoom)
	assert.ErrorIs(t, joiner.JoinSession(ctx, "ZZZ999"), svcErr.ErrPersistence)
	assert.Empty(t, joiner.spy.Ops("Update"))
}

func TestFullRoundComputesMatches(t *testing.T) {
	env, creator, joiner := startMatch(t, 20*time.Millisecond)

	rec := &docstoretest.Recorder{}
	cancel, err := env.Store.Watch(context.Background(), session.Path(code), rec.Record)
	require.NoError(t, err)
	defer cancel()

	creator.swipe(t, session.VoteLike)
	creator.swipe(t, session.VoteLike)
	creator.swipe(t, session.VoteDislike)

	require.Eventually(t, func() bool { return creator.View().Waiting }, waitFor, tick)
	// the joiner writes the whole vote array, so let it see the creator's
	// votes first
	require.Eventually(t, func() bool {
		doc := joiner.Document()
		return doc != nil && doc.Player1Done
	}, waitFor, tick)

	joiner.swipe(t, session.VoteLike)
	joiner.swipe(t, session.VoteDislike)
	joiner.swipe(t, session.VoteLike)

	creator.waitState(t, session.StateResults)
	joiner.waitState(t, session.StateResults)

	for _, p := range []*player{creator, joiner} {
		matches := p.View().Matches
		require.Len(t, matches, 1)
		assert.Equal(t, "Pizza", matches[0].Name)
	}

	doc, ok := stored(t, env.Store)
	require.True(t, ok)
	assert.Equal(t, 3, doc.Player1Index)
	assert.Equal(t, 3, doc.Player2Index)
	assert.True(t, doc.Player1Done && doc.Player2Done)

	for _, snap := range rec.All() {
		if !snap.Exists {
			continue
		}
		d, err := session.Decode(snap)
		require.NoError(t, err)
		assert.NoError(t, d.Validate())
	}
}

func TestSwipeRejectsWhileAnimating(t *testing.T) {
	_, creator, _ := startMatch(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, creator.Swipe(ctx, session.VoteLike))
	assert.ErrorIs(t, creator.Swipe(ctx, session.VoteLike), session.ErrSwipeInFlight)
	assert.Len(t, creator.spy.Ops("Update"), 1)

	// the echo moves the card on even though the animation flag is still up
	require.Eventually(t, func() bool {
		v := creator.View()
		return v.Cursor == 1 && v.Animating
	}, waitFor, tick)
	require.NotNil(t, creator.View().Card)
	assert.Equal(t, "Sushi", creator.View().Card.Name)
}

func TestSwipeFailureKeepsCursor(t *testing.T) {
	env, creator, _ := startMatch(t, 20*time.Millisecond)
	ctx := context.Background()

	creator.spy.FailNext("Update", errBoom)
	err := creator.Swipe(ctx, session.VoteLike)
	assert.ErrorIs(t, err, svcErr.ErrPersistence)

	view := creator.View()
	assert.Equal(t, 0, view.Cursor)
	assert.False(t, view.Animating)
	assert.ErrorIs(t, view.Err, svcErr.ErrPersistence)

	creator.spy.FailNext("Update", nil)
	creator.swipe(t, session.VoteLike)

	doc, _ := stored(t, env.Store)
	assert.Equal(t, 1, doc.Player1Index)
	assert.Equal(t, session.VoteLike, doc.ItemsWithVotes[0].P1Vote)
}

func TestSwipeOutsideSwiping(t *testing.T) {
	env := docstoretest.New(t)
	creator := newPlayer(t, env.Store, "u1", newFakeLists(true), 20*time.Millisecond)

	assert.ErrorIs(t, creator.Swipe(context.Background(), session.VoteLike), session.ErrNotSwiping)
	createSession(t, creator)
	assert.ErrorIs(t, creator.Swipe(context.Background(), session.VoteLike), session.ErrNotSwiping)
	assert.Empty(t, creator.spy.Ops("Update"))
}

func TestMarkDoneIsIdempotent(t *testing.T) {
	env, creator, _ := startMatch(t, 20*time.Millisecond)
	ctx := context.Background()

	assert.ErrorIs(t, creator.MarkDone(ctx), session.ErrNotFinished)

	for i := 0; i < 3; i++ {
		creator.swipe(t, session.VoteLike)
	}
	require.Eventually(t, func() bool {
		doc, _ := stored(t, env.Store)
		return doc.Player1Done
	}, waitFor, tick)

	require.NoError(t, creator.MarkDone(ctx))
	require.NoError(t, creator.MarkDone(ctx))

	doneWrites := 0
	for _, op := range creator.spy.Ops("Update") {
		if _, ok := op.Fields["player1Done"]; ok {
			doneWrites++
		}
	}
	assert.Equal(t, 1, doneWrites)
	assert.Equal(t, session.StateSwiping, creator.State(), "results need both players")
	assert.True(t, creator.View().Waiting)
}

func TestEmptyCategoryGoesStraightToResults(t *testing.T) {
	env := docstoretest.New(t)
	src := newFakeLists(true)
	creator := newPlayer(t, env.Store, "u1", src, 20*time.Millisecond)
	joiner := newPlayer(t, env.Store, "u2", src, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, creator.CreateSession(ctx))
	require.NoError(t, creator.SelectCategory(ctx, lists.Public, "Vazia"))
	require.NoError(t, joiner.JoinSession(ctx, code))

	creator.waitState(t, session.StateResults)
	joiner.waitState(t, session.StateResults)
	assert.Empty(t, joiner.View().Matches)
}

func TestJoinerLeaveReturnsCreatorToLobby(t *testing.T) {
	env, creator, joiner := startMatch(t, 20*time.Millisecond)

	require.NoError(t, joiner.Leave(context.Background()))
	assert.Equal(t, session.StateNoSession, joiner.State())

	doc, ok := stored(t, env.Store)
	require.True(t, ok)
	assert.Empty(t, doc.JoinerID)
	creator.waitState(t, session.StateLobby)

	// a later write to the old session must not reach the departed joiner
	require.NoError(t, env.Store.Update(context.Background(), session.Path(code), map[string]any{"joinerId": "u3"}))
	creator.waitState(t, session.StateSwiping)
	assert.Equal(t, session.StateNoSession, joiner.State())
	assert.Empty(t, joiner.View().Code)
}

func TestCreatorLeaveTerminatesJoiner(t *testing.T) {
	env, creator, joiner := startMatch(t, 20*time.Millisecond)

	require.NoError(t, creator.Leave(context.Background()))
	assert.Equal(t, session.StateNoSession, creator.State())
	require.Len(t, creator.spy.Ops("Delete"), 1)

	_, ok := stored(t, env.Store)
	assert.False(t, ok)

	require.Eventually(t, func() bool { return joiner.views.sawState(session.StateTerminated) }, waitFor, tick)
	joiner.waitState(t, session.StateNoSession)
	assert.ErrorIs(t, joiner.View().Err, session.ErrSessionEnded)
	assert.Empty(t, joiner.spy.Ops("Delete"))
}

func TestLeaveFailureStillResetsLocally(t *testing.T) {
	_, creator, _ := startMatch(t, 20*time.Millisecond)

	creator.spy.FailNext("Delete", errBoom)
	require.NoError(t, creator.Leave(context.Background()))
	assert.Equal(t, session.StateNoSession, creator.State())
	assert.Empty(t, creator.View().Code)
}
