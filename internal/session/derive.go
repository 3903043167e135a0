package session

import "fmt"

// State is the screen-level state derived from the session document and the
// local role.
type State int

const (
	StateNoSession State = iota
	StateAwaitingListsReady
	StateCategorySelection
	StateLobby
	StateSwiping
	StateResults
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateAwaitingListsReady:
		return "awaiting_lists"
	case StateCategorySelection:
		return "category_selection"
	case StateLobby:
		return "lobby"
	case StateSwiping:
		return "swiping"
	case StateResults:
		return "results"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Derive maps a session document to a state. Priority is fixed: both players
// done wins over a present joiner, which wins over the lobby. A nil document
// (deleted remotely) is Terminated.
//
// A joiner looking at a document without joinerId is shown the lobby too;
// it only happens transiently around its own join or leave.
func Derive(doc *Document, isCreator bool) State {
	switch {
	case doc == nil:
		return StateTerminated
	case doc.Player1Done && doc.Player2Done:
		return StateResults
	case doc.Joined():
		return StateSwiping
	default:
		return StateLobby
	}
}

// Matches returns the items both players liked, in list order.
func Matches(doc *Document) []ItemVote {
	if doc == nil {
		return nil
	}
	var out []ItemVote
	for _, iv := range doc.ItemsWithVotes {
		if iv.Matched() {
			out = append(out, iv)
		}
	}
	return out
}

// ApplyVote returns a copy of items with p's vote set at index.
func ApplyVote(items []ItemVote, index int, p Player, v Vote) ([]ItemVote, error) {
	if v != VoteLike && v != VoteDislike {
		return nil, ErrInvalidVote
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("vote index %d outside list of %d: %w", index, len(items), ErrListFinished)
	}
	out := append([]ItemVote(nil), items...)
	if p == Player1 {
		out[index].P1Vote = v
	} else {
		out[index].P2Vote = v
	}
	return out, nil
}

// SwipeFields is the partial update recording p's vote at its cursor: the
// whole vote array plus p's advanced index, written together.
func SwipeFields(doc *Document, p Player, v Vote) (map[string]any, []ItemVote, error) {
	cursor := doc.Index(p)
	items, err := ApplyVote(doc.ItemsWithVotes, cursor, p, v)
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{
		"itemsWithVotes": itemsValue(items),
		p.IndexField():   cursor + 1,
	}, items, nil
}
