package item

import (
	"reflect"
	"strings"
	"testing"
)

const validCatalog = `{
	"deck_ids": ["deck-1"],
	"today": 100,
	"items": [
		{"id": "lexeme:의자", "kind": "vocabulary", "surface_forms": ["의자"], "gloss": "chair", "stability": 10, "last_review_day": 95},
		{"id": "colloc:사이에_있어요", "kind": "collocation", "surface_forms": ["사이에", "있어요"], "last_review_day": -1}
	]
}`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(strings.NewReader(validCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(c.Items) != 2 || c.Today != 100 {
		t.Fatalf("catalog = %+v", c)
	}
	if got := c.ByID()["lexeme:의자"].Gloss; got != "chair" {
		t.Fatalf("gloss = %q", got)
	}
	if got := c.Lexemes(); !reflect.DeepEqual(got, []string{"사이에", "의자"}) {
		t.Fatalf("lexemes = %v", got)
	}
}

func TestValidateRejectsBadCatalogs(t *testing.T) {
	cases := map[string]func(*Catalog){
		"no items":     func(c *Catalog) { c.Items = nil },
		"empty id":     func(c *Catalog) { c.Items[0].ID = "" },
		"duplicate id": func(c *Catalog) { c.Items[1].ID = c.Items[0].ID },
		"bad kind":     func(c *Catalog) { c.Items[0].Kind = "emoji" },
		"no forms":     func(c *Catalog) { c.Items[0].SurfaceForms = nil },
		"empty form":   func(c *Catalog) { c.Items[0].SurfaceForms = []string{""} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := ParseCatalog(strings.NewReader(validCatalog))
			if err != nil {
				t.Fatal(err)
			}
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("invalid catalog accepted")
			}
		})
	}
}

func TestParseCatalogRejectsGarbage(t *testing.T) {
	if _, err := ParseCatalog(strings.NewReader(`{"items": [{}]}`)); err == nil {
		t.Fatal("catalog with empty item accepted")
	}
	if _, err := ParseCatalog(strings.NewReader(`nope`)); err == nil {
		t.Fatal("non-JSON catalog accepted")
	}
}

func TestTopicByID(t *testing.T) {
	if TopicByID("room_objects") == nil {
		t.Fatal("built-in topic missing")
	}
	if TopicByID("moon_landing") != nil {
		t.Fatal("unknown topic resolved")
	}
}
