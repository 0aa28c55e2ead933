package extract

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPatterns is returned when a pattern document is malformed.
var ErrInvalidPatterns = errors.New("invalid pattern tables")

//go:embed patterns.yaml
var defaultPatternsYAML []byte

// Category is one labelled keyword list.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Requires []string `yaml:"requires,omitempty"` // every entry must also match
}

// Patterns holds every keyword table used for tagging and keyword-level
// emotion classification. Tables are ordered; the first match wins where a
// single label is picked.
type Patterns struct {
	Emotions     []Category         `yaml:"emotions"`
	Lexicon      map[string]float64 `yaml:"sentiment_lexicon"`
	Facts        []Category         `yaml:"facts"`
	Topics       []Category         `yaml:"topics"`
	Intimacy     []Category         `yaml:"intimacy"`
	Trust        []Category         `yaml:"trust"`
	Modes        []Category         `yaml:"modes"`
	Times        []Category         `yaml:"times"`
	Traits       []Category         `yaml:"traits"`
	Negations    []string           `yaml:"negations"`
	Intensifiers map[string]float64 `yaml:"intensifiers"`
}

// DefaultPatterns returns the built-in tables.
func DefaultPatterns() *Patterns {
	p, err := ParsePatterns(defaultPatternsYAML)
	if err != nil {
		panic(fmt.Sprintf("extract: built-in patterns are invalid: %v", err))
	}
	return p
}

// LoadPatterns reads pattern tables from path. An empty path selects the
// built-in tables.
func LoadPatterns(path string) (*Patterns, error) {
	if path == "" {
		log.Printf("extract: WHISPER_PATTERNS_PATH not set, using built-in pattern tables")
		return DefaultPatterns(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: failed to read patterns %s: %w", path, err)
	}
	return ParsePatterns(data)
}

// ParsePatterns decodes and validates a YAML pattern document.
func ParsePatterns(data []byte) (*Patterns, error) {
	var p Patterns
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatterns, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.compile()
	return &p, nil
}

// Validate requires every table a tag depends on to be present and every
// category to be named and non-empty.
func (p *Patterns) Validate() error {
	tables := []struct {
		name string
		cats []Category
	}{
		{"emotions", p.Emotions},
		{"intimacy", p.Intimacy},
		{"trust", p.Trust},
		{"modes", p.Modes},
		{"times", p.Times},
		{"traits", p.Traits},
		{"facts", p.Facts},
		{"topics", p.Topics},
	}
	for _, table := range tables {
		if len(table.cats) == 0 {
			return fmt.Errorf("%w: table %s is empty", ErrInvalidPatterns, table.name)
		}
		seen := make(map[string]bool, len(table.cats))
		for i, c := range table.cats {
			if c.Name == "" {
				return fmt.Errorf("%w: %s[%d] has no name", ErrInvalidPatterns, table.name, i)
			}
			if seen[c.Name] {
				return fmt.Errorf("%w: %s has duplicate category %q", ErrInvalidPatterns, table.name, c.Name)
			}
			seen[c.Name] = true
			if len(c.Keywords) == 0 {
				return fmt.Errorf("%w: %s.%s has no keywords", ErrInvalidPatterns, table.name, c.Name)
			}
		}
	}
	return nil
}

// compile normalizes every keyword once so matching is a plain substring
// test against normalized text.
func (p *Patterns) compile() {
	for _, table := range [][]Category{p.Emotions, p.Facts, p.Topics, p.Intimacy, p.Trust, p.Modes, p.Times, p.Traits} {
		for i := range table {
			table[i].Keywords = normalizeAll(table[i].Keywords)
			table[i].Requires = normalizeAll(table[i].Requires)
		}
	}
	lex := make(map[string]float64, len(p.Lexicon))
	for w, v := range p.Lexicon {
		lex[Normalize(w)] = v
	}
	p.Lexicon = lex
	p.Negations = normalizeAll(p.Negations)
	ints := make(map[string]float64, len(p.Intensifiers))
	for w, v := range p.Intensifiers {
		ints[Normalize(w)] = v
	}
	p.Intensifiers = ints
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}
