// Package item defines the reinforceable-item catalog consumed per session.
package item

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// ID is a stable string key for an item, e.g. "lexeme:의자" or "colloc:사이에_있어요".
type ID string

// Kind classifies what an item reinforces.
type Kind string

const (
	KindVocabulary  Kind = "vocabulary"
	KindGrammar     Kind = "grammar_pattern"
	KindCollocation Kind = "collocation"
)

// ValidKinds are the allowed item kinds.
var ValidKinds = map[Kind]bool{
	KindVocabulary:  true,
	KindGrammar:     true,
	KindCollocation: true,
}

// Item is one entry from the snapshot builder. Everything here is read-only
// input; in-session recency and mastery live elsewhere.
type Item struct {
	ID           ID       `json:"id"`
	Kind         Kind     `json:"kind"`
	SurfaceForms []string `json:"surface_forms"`
	Gloss        string   `json:"gloss,omitempty"`

	// Memory-model estimates from the scheduler. Stability <= 0 means the
	// item has never been reviewed; Decay <= 0 falls back to the model default.
	Stability  float64 `json:"stability,omitempty"`
	Difficulty float64 `json:"difficulty,omitempty"`
	Decay      float64 `json:"decay,omitempty"`

	// Scheduler day numbers. LastReviewDay < 0 means unknown.
	LastReviewDay int  `json:"last_review_day"`
	Due           int  `json:"due,omitempty"`
	Interval      int  `json:"interval,omitempty"`
	InReview      bool `json:"in_review,omitempty"`
}

// Lexeme returns the primary surface form.
func (it Item) Lexeme() string {
	if len(it.SurfaceForms) == 0 {
		return ""
	}
	return it.SurfaceForms[0]
}

// Catalog is the immutable per-session item snapshot.
type Catalog struct {
	DeckIDs []string `json:"deck_ids"`
	Today   int      `json:"today"`
	Items   []Item   `json:"items"`
}

// ByID returns an index over the catalog items.
func (c *Catalog) ByID() map[ID]Item {
	m := make(map[ID]Item, len(c.Items))
	for _, it := range c.Items {
		m[it.ID] = it
	}
	return m
}

// Lexemes returns the sorted set of primary surface forms.
func (c *Catalog) Lexemes() []string {
	seen := make(map[string]bool, len(c.Items))
	var out []string
	for _, it := range c.Items {
		lex := it.Lexeme()
		if lex == "" || seen[lex] {
			continue
		}
		seen[lex] = true
		out = append(out, lex)
	}
	sort.Strings(out)
	return out
}

// Validate checks catalog integrity before a session may start.
func (c *Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("catalog has no items")
	}
	seen := make(map[ID]bool, len(c.Items))
	for i, it := range c.Items {
		if it.ID == "" {
			return fmt.Errorf("item %d: empty id", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("item %d: duplicate id %q", i, it.ID)
		}
		seen[it.ID] = true
		if !ValidKinds[it.Kind] {
			return fmt.Errorf("item %q: invalid kind %q", it.ID, it.Kind)
		}
		if len(it.SurfaceForms) == 0 {
			return fmt.Errorf("item %q: no surface forms", it.ID)
		}
		for _, sf := range it.SurfaceForms {
			if sf == "" {
				return fmt.Errorf("item %q: empty surface form", it.ID)
			}
		}
	}
	return nil
}

// ParseCatalog reads a snapshot produced by the external builder.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

// LoadCatalog reads a snapshot file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return ParseCatalog(f)
}
