package lists

import "github.com/google/uuid"

// defaultNamespace scopes the name-based ids of built-in items, so every
// client seeding the defaults writes byte-identical documents.
var defaultNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tindecisos:default-lists"))

var defaultLists = []struct {
	category string
	items    [][2]string
}{
	{"Hobbies", [][2]string{
		{"Ler 📚", "https://placehold.co/400x250/A9D8E5/333?text=Ler"},
		{"Correr 🏃", "https://placehold.co/400x250/C1E1C1/333?text=Correr"},
		{"Cozinhar 🍳", "https://placehold.co/400x250/FFDDC1/333?text=Cozinhar"},
		{"Viajar ✈️", "https://placehold.co/400x250/D4A5A5/333?text=Viajar"},
		{"Tocar Violão 🎸", "https://placehold.co/400x250/F0E68C/333?text=Tocar+Viol%C3%A3o"},
	}},
	{"Comidas", [][2]string{
		{"Pizza 🍕", "https://placehold.co/400x250/E5A9A9/333?text=Pizza"},
		{"Hambúrguer 🍔", "https://placehold.co/400x250/E5C2A9/333?text=Hamb%C3%BArguer"},
		{"Sushi 🍣", "https://placehold.co/400x250/A9E5E0/333?text=Sushi"},
		{"Salada 🥗", "https://placehold.co/400x250/A9E5B2/333?text=Salada"},
		{"Churrasco 🥩", "https://placehold.co/400x250/E5A9C2/333?text=Churrasco"},
	}},
}

// Defaults is the built-in public collection written when the public
// document is first observed empty.
func Defaults() Collection {
	c := NewCollection()
	for _, l := range defaultLists {
		items := make([]Item, 0, len(l.items))
		for _, it := range l.items {
			items = append(items, Item{
				ID:    uuid.NewSHA1(defaultNamespace, []byte(l.category+"/"+it[0])).String(),
				Name:  it[0],
				Image: it[1],
			})
		}
		c.put(l.category, items)
	}
	return c
}
