package console

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/session"
)

// render prints v unless it looks the same as the last printed view.
func (c *Console) render(v session.View, force bool) {
	key := viewKey(v)
	c.mu.Lock()
	if !force && key == c.rendered {
		c.mu.Unlock()
		return
	}
	c.rendered = key
	repo := c.repo
	c.mu.Unlock()

	var b strings.Builder
	switch v.State {
	case session.StateNoSession:
		b.WriteString("No active session. create or join CODE.\n")
	case session.StateAwaitingListsReady:
		b.WriteString("Loading lists...\n")
	case session.StateCategorySelection:
		if repo == nil {
			return
		}
		c.writeChoices(&b, repo)
	case session.StateLobby:
		fmt.Fprintf(&b, "Session %s  [%s]\n%s\n", v.Code, v.Category, v.LobbyStatus)
		if v.IsCreator {
			b.WriteString("Share this code with the other player.\n")
			if c.opts.QR {
				if q, err := qrcode.New(v.Code, qrcode.Medium); err == nil {
					b.WriteString(q.ToSmallString(false))
				}
			}
		}
	case session.StateSwiping:
		switch {
		case v.Card != nil:
			fmt.Fprintf(&b, "[%d/%d] %s\n", v.Cursor+1, v.Total, v.Card.Name)
			if v.Card.Image != "" {
				fmt.Fprintf(&b, "        %s\n", v.Card.Image)
			}
			b.WriteString("like or dislike?\n")
		case v.Waiting:
			b.WriteString("You are done. Waiting for the other player to finish...\n")
		}
	case session.StateResults:
		if len(v.Matches) == 0 {
			b.WriteString("No matches this time.\n")
		} else {
			b.WriteString("It's a match! You both liked:\n")
			for _, m := range v.Matches {
				fmt.Fprintf(&b, "  * %s\n", m.Name)
			}
		}
		b.WriteString("leave to start over.\n")
	case session.StateTerminated:
		b.WriteString("The session was closed by its creator.\n")
	}
	c.printf("%s", b.String())
}

func (c *Console) writeChoices(b *strings.Builder, repo *lists.Repository) {
	var choices []choice
	b.WriteString("Pick a list (pick N):\n")
	for _, s := range []lists.Scope{lists.Public, lists.Private} {
		for _, name := range repo.Categories(s) {
			choices = append(choices, choice{scope: s, category: name})
			items, _ := repo.Items(s, name)
			fmt.Fprintf(b, "  %d. %s (%d items, %s)\n", len(choices), name, len(items), s)
		}
	}
	if len(choices) == 0 {
		b.WriteString("  no lists yet, create one with new-list private NAME\n")
	}

	c.mu.Lock()
	c.choices = choices
	c.mu.Unlock()
}

func viewKey(v session.View) string {
	card := ""
	if v.Card != nil {
		card = v.Card.ID + v.Card.Name
	}
	return fmt.Sprintf("%s|%s|%d|%s|%t|%d|%s", v.State, v.Code, v.Cursor, card, v.Waiting, len(v.Matches), v.LobbyStatus)
}
