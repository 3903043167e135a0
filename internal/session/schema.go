package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/lists"
)

// Collection holds one document per session, keyed by session code.
const Collection = "tindecisos-sessions"

// Path is the document path of a session code.
func Path(code string) string { return Collection + "/" + code }

const (
	codeLength   = 6
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	ErrInvalidCode     = errors.New("session code must be 6 letters or digits")
	ErrInvalidVote     = errors.New("vote must be like or dislike")
	ErrInvalidDocument = errors.New("invalid session document")
)

// NewCode returns a random 6-character uppercase base36 code. Collisions
// with existing sessions are not checked.
func NewCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate session code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ParseCode normalizes user input (trim, uppercase) and validates it.
func ParseCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != codeLength {
		return "", ErrInvalidCode
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

// Vote is a player's decision on one item. The zero value means "not yet"
// and is stored as null.
type Vote string

const (
	VoteNone    Vote = ""
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)

// ParseVote accepts like/dislike and a few shorthands.
func ParseVote(v string) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "like", "l", "yes", "right":
		return VoteLike, nil
	case "dislike", "d", "no", "left":
		return VoteDislike, nil
	}
	return VoteNone, ErrInvalidVote
}

func (v Vote) Valid() bool {
	return v == VoteNone || v == VoteLike || v == VoteDislike
}

func (v Vote) MarshalJSON() ([]byte, error) {
	if v == VoteNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(v))
}

// Player is the seat a participant occupies: the creator is player 1.
type Player int

const (
	Player1 Player = 1
	Player2 Player = 2
)

func PlayerFor(isCreator bool) Player {
	if isCreator {
		return Player1
	}
	return Player2
}

func (p Player) IndexField() string { return fmt.Sprintf("player%dIndex", p) }
func (p Player) DoneField() string  { return fmt.Sprintf("player%dDone", p) }

// ItemVote is an item copied into the session with both players' votes.
type ItemVote struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	P1Vote Vote   `json:"p1_vote"`
	P2Vote Vote   `json:"p2_vote"`
}

func (iv ItemVote) Vote(p Player) Vote {
	if p == Player1 {
		return iv.P1Vote
	}
	return iv.P2Vote
}

// Matched reports whether both players liked the item.
func (iv ItemVote) Matched() bool {
	return iv.P1Vote == VoteLike && iv.P2Vote == VoteLike
}

func (iv ItemVote) fields() map[string]any {
	f := lists.Item{ID: iv.ID, Name: iv.Name, Image: iv.Image}.Fields()
	f["p1_vote"] = voteValue(iv.P1Vote)
	f["p2_vote"] = voteValue(iv.P2Vote)
	return f
}

func voteValue(v Vote) any {
	if v == VoteNone {
		return nil
	}
	return string(v)
}

// Document is the synchronized session state both players read and write.
type Document struct {
	CreatorID      string     `json:"creatorId"`
	JoinerID       string     `json:"joinerId"`
	CategoryName   string     `json:"categoryName"`
	ItemsWithVotes []ItemVote `json:"itemsWithVotes"`
	Player1Index   int        `json:"player1Index"`
	Player2Index   int        `json:"player2Index"`
	Player1Done    bool       `json:"player1Done"`
	Player2Done    bool       `json:"player2Done"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewDocument snapshots items into a fresh session owned by creatorID.
// Later edits of the source category do not reach the session.
func NewDocument(creatorID, category string, items []lists.Item) *Document {
	votes := make([]ItemVote, 0, len(items))
	for _, it := range items {
		votes = append(votes, ItemVote{ID: it.ID, Name: it.Name, Image: it.Image})
	}
	return &Document{
		CreatorID:      creatorID,
		CategoryName:   category,
		ItemsWithVotes: votes,
	}
}

// Decode reads a session snapshot.
func Decode(snap docstore.Snapshot) (*Document, error) {
	var doc Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) Len() int { return len(d.ItemsWithVotes) }

func (d *Document) Joined() bool { return d.JoinerID != "" }

func (d *Document) Index(p Player) int {
	if p == Player1 {
		return d.Player1Index
	}
	return d.Player2Index
}

func (d *Document) Done(p Player) bool {
	if p == Player1 {
		return d.Player1Done
	}
	return d.Player2Done
}

func (d *Document) setIndex(p Player, i int) {
	if p == Player1 {
		d.Player1Index = i
	} else {
		d.Player2Index = i
	}
}

func (d *Document) setDone(p Player) {
	if p == Player1 {
		d.Player1Done = true
	} else {
		d.Player2Done = true
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := *d
	out.ItemsWithVotes = append([]ItemVote(nil), d.ItemsWithVotes...)
	return &out
}

// Validate checks the structural invariants. A done flag may lag behind its
// index reaching the end, but never lead it.
func (d *Document) Validate() error {
	if d.CreatorID == "" {
		return fmt.Errorf("%w: missing creatorId", ErrInvalidDocument)
	}
	n := d.Len()
	for _, p := range []Player{Player1, Player2} {
		i := d.Index(p)
		if i < 0 || i > n {
			return fmt.Errorf("%w: %s=%d outside [0,%d]", ErrInvalidDocument, p.IndexField(), i, n)
		}
		if d.Done(p) && i != n {
			return fmt.Errorf("%w: %s set with %s=%d of %d", ErrInvalidDocument, p.DoneField(), p.IndexField(), i, n)
		}
	}
	for i, iv := range d.ItemsWithVotes {
		if strings.TrimSpace(iv.Name) == "" {
			return fmt.Errorf("%w: item %d has no name", ErrInvalidDocument, i)
		}
		if !iv.P1Vote.Valid() || !iv.P2Vote.Valid() {
			return fmt.Errorf("%w: item %d has an unknown vote", ErrInvalidDocument, i)
		}
	}
	return nil
}

// Fields is the full document for the creating Set. createdAt is left for
// the store to stamp.
func (d *Document) Fields() map[string]any {
	f := map[string]any{
		"creatorId":      d.CreatorID,
		"joinerId":       nil,
		"categoryName":   nil,
		"itemsWithVotes": itemsValue(d.ItemsWithVotes),
		"player1Index":   d.Player1Index,
		"player2Index":   d.Player2Index,
		"player1Done":    d.Player1Done,
		"player2Done":    d.Player2Done,
		"createdAt":      docstore.ServerTimestamp(),
	}
	if d.JoinerID != "" {
		f["joinerId"] = d.JoinerID
	}
	if d.CategoryName != "" {
		f["categoryName"] = d.CategoryName
	}
	return f
}

func itemsValue(items []ItemVote) []any {
	out := make([]any, 0, len(items))
	for _, iv := range items {
		out = append(out, iv.fields())
	}
	return out
}
