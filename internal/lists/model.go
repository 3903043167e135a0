package lists

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	svcErr "github.com/oggyb/tindecisos/internal/errors"
)

var (
	ErrAlreadyExists    = fmt.Errorf("category %w", svcErr.ErrAlreadyExists)
	ErrCategoryNotFound = errors.New("category not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidName      = errors.New("name must not be empty")
	ErrStaleItem        = errors.New("item changed since it was read")
	ErrNotReady         = errors.New("lists are still loading")
)

// Item is one swipeable entry of a category. Image is empty when absent.
type Item struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// NewItem trims its inputs and assigns a fresh id.
func NewItem(name, image string) Item {
	return Item{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Image: strings.TrimSpace(image),
	}
}

func (it Item) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// Fields is the stored shape: a missing image is written as null.
func (it Item) Fields() map[string]any {
	f := map[string]any{"name": it.Name, "image": nil}
	if it.ID != "" {
		f["id"] = it.ID
	}
	if it.Image != "" {
		f["image"] = it.Image
	}
	return f
}

// ItemRef addresses an item by position. When ID is set the mutation is
// refused with ErrStaleItem if the item now at Index has another id.
type ItemRef struct {
	Index int
	ID    string
}

// Collection maps category name to its ordered items, remembering the order
// categories were created in.
type Collection struct {
	order []string
	lists map[string][]Item
}

func NewCollection() Collection {
	return Collection{lists: map[string][]Item{}}
}

func (c Collection) Len() int { return len(c.order) }

func (c Collection) Has(category string) bool {
	_, ok := c.lists[category]
	return ok
}

// Categories returns category names in creation order.
func (c Collection) Categories() []string {
	return append([]string(nil), c.order...)
}

// Items returns a copy of the category's items.
func (c Collection) Items(category string) ([]Item, bool) {
	items, ok := c.lists[category]
	if !ok {
		return nil, false
	}
	return append([]Item{}, items...), true
}

// Clone returns a deep copy safe to hand out of the repository lock.
func (c Collection) Clone() Collection {
	out := Collection{
		order: append([]string(nil), c.order...),
		lists: make(map[string][]Item, len(c.lists)),
	}
	for k, v := range c.lists {
		out.lists[k] = append([]Item{}, v...)
	}
	return out
}

func (c *Collection) put(category string, items []Item) {
	if c.lists == nil {
		c.lists = map[string][]Item{}
	}
	if _, ok := c.lists[category]; !ok {
		c.order = append(c.order, category)
	}
	c.lists[category] = items
}

func (c *Collection) remove(category string) {
	delete(c.lists, category)
	for i, k := range c.order {
		if k == category {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Fields encodes the whole collection as one document:
//
//	{"categories": ["Hobbies", ...], "lists": {"Hobbies": [{id,name,image}, ...]}}
//
// The repository adds a "rev" counter when it writes the document.
func (c Collection) Fields() map[string]any {
	categories := make([]any, 0, len(c.order))
	lists := make(map[string]any, len(c.order))
	for _, k := range c.order {
		categories = append(categories, k)
		items := make([]any, 0, len(c.lists[k]))
		for _, it := range c.lists[k] {
			items = append(items, it.Fields())
		}
		lists[k] = items
	}
	return map[string]any{"categories": categories, "lists": lists}
}

// DecodeCollection reads a stored collection. Documents in the flat legacy
// shape {"Hobbies": [...], "Comidas": [...]} are accepted too; their
// categories come back in name order since the flat shape keeps none.
func DecodeCollection(data map[string]any) (Collection, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Collection{}, err
	}

	var structured struct {
		Categories []string          `json:"categories"`
		Lists      map[string][]Item `json:"lists"`
	}
	if _, ok := data["lists"].(map[string]any); ok {
		if err := json.Unmarshal(raw, &structured); err != nil {
			return Collection{}, fmt.Errorf("decode lists: %w", err)
		}
		c := NewCollection()
		for _, k := range structured.Categories {
			if items, ok := structured.Lists[k]; ok && !c.Has(k) {
				c.put(k, nonNil(items))
			}
		}
		// keys missing from the order list are kept, appended by name
		var rest []string
		for k := range structured.Lists {
			if !c.Has(k) {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			c.put(k, nonNil(structured.Lists[k]))
		}
		return c, nil
	}

	var flat map[string][]Item
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Collection{}, fmt.Errorf("decode legacy lists: %w", err)
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c := NewCollection()
	for _, k := range keys {
		c.put(k, nonNil(flat[k]))
	}
	return c, nil
}

func nonNil(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}
