// Package textstat counts words and syllables in narration text.
package textstat

import (
	"fmt"
	"strings"
	"unicode"
)

// Unit is the unit a speech rate is measured in.
type Unit string

const (
	UnitSyllables Unit = "syllables"
	UnitWords     Unit = "words"
)

// ParseUnit validates a configured speech-rate unit.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitSyllables, UnitWords:
		return u, nil
	case "":
		return UnitSyllables, nil
	default:
		return "", fmt.Errorf("unknown speech rate unit %q (want %q or %q)", s, UnitSyllables, UnitWords)
	}
}

// Counts holds the tallies for one piece of text.
type Counts struct {
	Words     int
	Syllables int
}

// In returns the tally matching unit.
func (c Counts) In(u Unit) int {
	if u == UnitWords {
		return c.Words
	}
	return c.Syllables
}

// Counter tallies words and syllables.
type Counter interface {
	Count(text string) Counts
}

// Hyphenator reports how many hyphenation points a word has.
type Hyphenator interface {
	Points(word string) int
}

// Analyzer is the default Counter. Each word contributes its hyphenation
// points plus one, so monosyllables, which have no points, still count.
type Analyzer struct {
	Hyphenator Hyphenator
}

// NewAnalyzer returns an Analyzer using the US English TeX patterns.
func NewAnalyzer() *Analyzer {
	return &Analyzer{Hyphenator: English()}
}

func (a *Analyzer) Count(text string) Counts {
	h := a.Hyphenator
	if h == nil {
		h = English()
	}
	var c Counts
	for _, w := range Words(text) {
		c.Words++
		c.Syllables += h.Points(w) + 1
	}
	return c
}

// Words splits text into word tokens. Punctuation is dropped; apostrophes
// and hyphens inside a word are kept ("don't", "well-known").
func Words(text string) []string {
	var words []string
	var b strings.Builder
	runes := []rune(text)
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '\'' || r == '’' || r == '-') && b.Len() > 0 &&
			i+1 < len(runes) && (unicode.IsLetter(runes[i+1]) || unicode.IsDigit(runes[i+1])):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return words
}
