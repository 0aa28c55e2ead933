package extract

import (
	"strings"
	"unicode"
)

// Text is a message prepared for keyword matching: lowercased, punctuation
// folded to spaces, padded so every word is surrounded by single spaces.
type Text struct {
	padded string
	tokens []string
}

// Prepare normalizes raw message text.
func Prepare(raw string) Text {
	norm := Normalize(raw)
	// Possessives match their base word: "cat's" matches "cat".
	padded := strings.ReplaceAll(" "+norm+" ", "'s ", " ")
	return Text{
		padded: padded,
		tokens: strings.Fields(norm),
	}
}

// Tokens returns the normalized words of the text in order.
func (t Text) Tokens() []string {
	return t.tokens
}

// Contains reports whether the normalized phrase occurs on word boundaries.
func (t Text) Contains(phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(t.padded, " "+phrase+" ")
}

// Normalize lowercases s, folds typographic apostrophes, and replaces every
// rune other than letters, digits, apostrophes and hyphens with a space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if r == '’' || r == '‘' {
			r = '\''
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Matches reports whether any keyword and every required word occur in t.
func (c Category) Matches(t Text) bool {
	for _, req := range c.Requires {
		if !t.Contains(req) {
			return false
		}
	}
	for _, kw := range c.Keywords {
		if t.Contains(kw) {
			return true
		}
	}
	return false
}

// Count returns how many of the category's keywords occur in t.
func (c Category) Count(t Text) int {
	n := 0
	for _, kw := range c.Keywords {
		if t.Contains(kw) {
			n++
		}
	}
	return n
}

// FirstMatch returns the name of the first category in table that matches t.
func FirstMatch(table []Category, t Text) (string, bool) {
	for _, c := range table {
		if c.Matches(t) {
			return c.Name, true
		}
	}
	return "", false
}

// rank returns the position of name in table, or -1.
func rank(table []Category, name string) int {
	for i, c := range table {
		if c.Name == name {
			return i
		}
	}
	return -1
}
