// Package console is a line-oriented terminal front-end. It renders the
// session machine's views and turns typed commands into intents.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/oggyb/tindecisos/internal/auth"
	"github.com/oggyb/tindecisos/internal/docstore"
	svcErr "github.com/oggyb/tindecisos/internal/errors"
	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/logger"
	"github.com/oggyb/tindecisos/internal/session"
)

var (
	errNotSignedIn = errors.New("sign in first: login EMAIL PASSWORD")
	errSignedIn    = errors.New("already signed in, logout first")
	errAdminOnly   = errors.New("only admins can change the public lists")
	errUsage       = errors.New("usage")
)

type Options struct {
	In     io.Reader
	Out    io.Writer
	Auth   auth.Provider
	Store  docstore.Store
	Logger *slog.Logger

	SwipeDelay time.Duration
	// QR prints the lobby code as a terminal QR code.
	QR bool
}

type choice struct {
	scope    lists.Scope
	category string
}

// Console owns the per-user repository and session machine while someone
// is signed in.
type Console struct {
	opts Options
	log  *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	user     *auth.User
	repo     *lists.Repository
	machine  *session.Machine
	rendered string
	choices  []choice
	// shown remembers item ids as last listed, per scope/category, so edits
	// by position can be checked against what the user saw.
	shown map[string][]string
}

func New(opts Options) *Console {
	c := &Console{
		opts:  opts,
		log:   opts.Logger,
		out:   opts.Out,
		shown: map[string][]string{},
	}
	if c.log == nil {
		c.log = logger.L()
	}
	opts.Auth.OnAuthChange(func(u *auth.User) {
		if u == nil {
			c.printf("Signed out.\n")
			return
		}
		role := ""
		if u.Admin {
			role = " (admin)"
		}
		c.printf("Signed in as %s%s.\n", u.Email, role)
	})
	return c
}

// Run reads commands until quit, EOF or ctx ends. Command errors are
// printed and never stop the loop.
func (c *Console) Run(ctx context.Context) error {
	defer c.teardown(context.Background())

	c.printf("tindecisos. Type help for commands.\n")
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.opts.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			quit, err := c.Exec(ctx, line)
			if err != nil {
				c.printf("error: %s\n", describe(err))
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) (quit bool, err error) {
	args, err := splitArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		c.printf("%s", help)
		return false, nil
	case "login":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: login EMAIL PASSWORD", errUsage)
		}
		return false, c.login(ctx, args[0], args[1])
	}

	c.mu.Lock()
	signedIn := c.user != nil
	c.mu.Unlock()
	if !signedIn {
		return false, errNotSignedIn
	}

	switch cmd {
	case "logout":
		c.teardown(ctx)
		c.opts.Auth.SignOut()
		return false, nil
	case "create":
		return false, c.machine.CreateSession(ctx)
	case "pick":
		return false, c.pick(ctx, args)
	case "join":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: join CODE", errUsage)
		}
		return false, c.machine.JoinSession(ctx, args[0])
	case "like", "dislike", "l", "d":
		v, _ := session.ParseVote(cmd)
		return false, c.machine.Swipe(ctx, v)
	case "done":
		return false, c.machine.MarkDone(ctx)
	case "leave":
		return false, c.machine.Leave(ctx)
	case "status":
		c.render(c.machine.View(), true)
		return false, nil
	case "lists":
		return false, c.listCategories(args)
	case "items":
		return false, c.listItems(args)
	case "new-list", "add", "edit", "rm", "rm-list":
		return false, c.editLists(ctx, cmd, args)
	}
	return false, fmt.Errorf("unknown command %q, type help", cmd)
}

func (c *Console) login(ctx context.Context, email, password string) error {
	c.mu.Lock()
	if c.user != nil {
		c.mu.Unlock()
		return errSignedIn
	}
	c.mu.Unlock()

	u, err := c.opts.Auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	log := c.log.With("uid", u.UID)
	repo := lists.NewRepository(c.opts.Store, u.UID, logger.ModuleOf(log, "lists"))
	if err := repo.Start(context.Background()); err != nil {
		c.opts.Auth.SignOut()
		return err
	}
	m := session.New(session.Options{
		UserID:     u.UID,
		Store:      c.opts.Store,
		Lists:      repo,
		Logger:     logger.ModuleOf(log, "session"),
		SwipeDelay: c.opts.SwipeDelay,
	})
	m.OnChange(func(v session.View) { c.render(v, false) })

	c.mu.Lock()
	c.user = &u
	c.repo = repo
	c.machine = m
	c.rendered = ""
	c.mu.Unlock()
	return nil
}

// teardown leaves any session and stops the list watches.
func (c *Console) teardown(ctx context.Context) {
	c.mu.Lock()
	m, repo := c.machine, c.repo
	c.user, c.machine, c.repo = nil, nil, nil
	c.choices = nil
	c.shown = map[string][]string{}
	c.mu.Unlock()

	if m != nil {
		_ = m.Leave(ctx)
	}
	if repo != nil {
		repo.Stop()
	}
}

func (c *Console) pick(ctx context.Context, args []string) error {
	scope := lists.Public
	var name []string
	for _, a := range args {
		if a == "--private" || a == "-p" {
			scope = lists.Private
			continue
		}
		name = append(name, a)
	}
	if len(name) == 0 {
		return fmt.Errorf("%w: pick N|NAME [--private]", errUsage)
	}
	category := strings.Join(name, " ")

	if n, err := strconv.Atoi(category); err == nil {
		c.mu.Lock()
		choices := c.choices
		c.mu.Unlock()
		if n < 1 || n > len(choices) {
			return fmt.Errorf("no category number %d", n)
		}
		scope, category = choices[n-1].scope, choices[n-1].category
	}
	return c.machine.SelectCategory(ctx, scope, category)
}

func (c *Console) listCategories(args []string) error {
	scopes := []lists.Scope{lists.Public, lists.Private}
	if len(args) == 1 {
		s, err := lists.ParseScope(args[0])
		if err != nil {
			return err
		}
		scopes = []lists.Scope{s}
	}
	for _, s := range scopes {
		cats := c.repo.Categories(s)
		c.printf("%s lists:\n", s)
		if len(cats) == 0 {
			c.printf("  (none)\n")
		}
		for _, name := range cats {
			items, _ := c.repo.Items(s, name)
			c.printf("  %s (%d)\n", name, len(items))
		}
	}
	return nil
}

func (c *Console) listItems(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: items SCOPE CATEGORY", errUsage)
	}
	s, err := lists.ParseScope(args[0])
	if err != nil {
		return err
	}
	category := strings.Join(args[1:], " ")
	items, ok := c.repo.Items(s, category)
	if !ok {
		return fmt.Errorf("%q: %w", category, lists.ErrCategoryNotFound)
	}

	ids := make([]string, len(items))
	c.printf("%s / %s:\n", s, category)
	for i, it := range items {
		ids[i] = it.ID
		if it.Image != "" {
			c.printf("  %d. %s  <%s>\n", i+1, it.Name, it.Image)
		} else {
			c.printf("  %d. %s\n", i+1, it.Name)
		}
	}
	if len(items) == 0 {
		c.printf("  (empty)\n")
	}

	c.mu.Lock()
	c.shown[shownKey(s, category)] = ids
	c.mu.Unlock()
	return nil
}

func (c *Console) editLists(ctx context.Context, cmd string, args []string) error {
	need := map[string]int{"new-list": 2, "add": 3, "edit": 4, "rm": 3, "rm-list": 2}[cmd]
	if len(args) < need {
		return fmt.Errorf("%w: %s", errUsage, usage[cmd])
	}
	s, err := lists.ParseScope(args[0])
	if err != nil {
		return err
	}
	c.mu.Lock()
	admin := c.user != nil && c.user.Admin
	c.mu.Unlock()
	if s == lists.Public && !admin {
		return errAdminOnly
	}

	switch cmd {
	case "new-list":
		name := strings.Join(args[1:], " ")
		if err := c.repo.CreateCategory(ctx, s, name); err != nil {
			return err
		}
		c.printf("Created %s list %q.\n", s, name)
	case "rm-list":
		name := strings.Join(args[1:], " ")
		if err := c.repo.DeleteCategory(ctx, s, name); err != nil {
			return err
		}
		c.printf("Deleted %s list %q.\n", s, name)
	case "add":
		item := lists.Item{Name: args[2]}
		if len(args) > 3 {
			item.Image = args[3]
		}
		added, err := c.repo.AddItem(ctx, s, args[1], item)
		if err != nil {
			return err
		}
		c.printf("Added %q to %s.\n", added.Name, args[1])
	case "edit", "rm":
		ref, err := c.ref(s, args[1], args[2])
		if err != nil {
			return err
		}
		if cmd == "rm" {
			if err := c.repo.DeleteItem(ctx, s, args[1], ref); err != nil {
				return err
			}
			c.forget(s, args[1])
			c.printf("Removed item %d from %s.\n", ref.Index+1, args[1])
			return nil
		}
		item := lists.Item{Name: args[3]}
		if len(args) > 4 {
			item.Image = args[4]
		}
		if err := c.repo.EditItem(ctx, s, args[1], ref, item); err != nil {
			return err
		}
		c.printf("Updated item %d of %s.\n", ref.Index+1, args[1])
	}
	return nil
}

func (c *Console) ref(s lists.Scope, category, n string) (lists.ItemRef, error) {
	i, err := strconv.Atoi(n)
	if err != nil || i < 1 {
		return lists.ItemRef{}, fmt.Errorf("item number must be 1 or more, got %q", n)
	}
	ref := lists.ItemRef{Index: i - 1}
	c.mu.Lock()
	if ids := c.shown[shownKey(s, category)]; i <= len(ids) {
		ref.ID = ids[i-1]
	}
	c.mu.Unlock()
	return ref, nil
}

// forget drops the listed ids after positions shifted.
func (c *Console) forget(s lists.Scope, category string) {
	c.mu.Lock()
	delete(c.shown, shownKey(s, category))
	c.mu.Unlock()
}

func shownKey(s lists.Scope, category string) string {
	return s.String() + "/" + category
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, svcErr.ErrAuthInvalid):
		return "invalid email or password"
	case errors.Is(err, svcErr.ErrAuthDenied):
		return "this account is not allowed to use the app"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found, check the code"
	case errors.Is(err, session.ErrSwipeInFlight):
		return "hold on, the last card is still going"
	case errors.Is(err, svcErr.ErrPersistence):
		return "could not reach the store: " + err.Error()
	}
	return err.Error()
}

// splitArgs splits a command line the way a shell would, without
// expansion. Operators like ; or | must be quoted.
func splitArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot parse %q, check the quotes", errUsage, line)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("%w: quote names containing ; & | < or >", errUsage)
	}
	return args, nil
}

var usage = map[string]string{
	"new-list": "new-list SCOPE NAME",
	"add":      "add SCOPE CATEGORY NAME [IMAGE]",
	"edit":     "edit SCOPE CATEGORY N NAME [IMAGE]",
	"rm":       "rm SCOPE CATEGORY N",
	"rm-list":  "rm-list SCOPE NAME",
}

const help = `Commands:
  login EMAIL PASSWORD        sign in
  logout                      sign out
  create                      start a session and choose a list
  pick N|NAME [--private]     choose the list for the new session
  join CODE                   join a session by its code
  like | dislike              vote on the current card (l / d)
  done                        mark yourself done at the end of the list
  leave                       leave the session
  status                      show the current screen again
  lists [public|private]      show categories
  items SCOPE CATEGORY        show the items of a category
  new-list SCOPE NAME         create a category
  add SCOPE CATEGORY NAME [IMAGE]
  edit SCOPE CATEGORY N NAME [IMAGE]
  rm SCOPE CATEGORY N         delete item N
  rm-list SCOPE NAME          delete a category
  quit
Quote names with spaces, "like this" or 'like this'. SCOPE is public or private.
`
