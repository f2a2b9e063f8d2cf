package textstat

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"
)

// TeX hyphenation patterns and exceptions for US English (hyph-utf8
// hyph-en-us), the set pyphen uses for "en".
var (
	//go:embed patterns/hyph-en-us.pat.txt
	enUSPatterns string
	//go:embed patterns/hyph-en-us.hyp.txt
	enUSExceptions string
)

// Patterns hyphenates words with Liang's algorithm over TeX patterns.
// LeftMin and RightMin are the shortest word prefix and suffix a
// hyphenation point may leave.
type Patterns struct {
	LeftMin  int
	RightMin int

	patterns   map[string][]uint8
	exceptions map[string][]int
	maxLen     int
}

// English returns the US English patterns with pyphen's default minimums
// of two letters on either side.
var English = sync.OnceValue(func() *Patterns {
	p, err := ParsePatterns(strings.NewReader(enUSPatterns), strings.NewReader(enUSExceptions))
	if err != nil {
		panic(fmt.Sprintf("textstat: embedded patterns: %v", err))
	}
	return p
})

// ParsePatterns reads patterns ("hy3ph", ".ach4") and exceptions
// ("as-so-ciate"), one per line or whitespace-separated. exceptions may be
// nil.
func ParsePatterns(patterns, exceptions io.Reader) (*Patterns, error) {
	p := &Patterns{
		LeftMin:    2,
		RightMin:   2,
		patterns:   make(map[string][]uint8),
		exceptions: make(map[string][]int),
	}

	sc := bufio.NewScanner(patterns)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		var letters strings.Builder
		values := []uint8{0}
		for _, r := range sc.Text() {
			if r >= '0' && r <= '9' {
				values[len(values)-1] = uint8(r - '0')
				continue
			}
			letters.WriteRune(unicode.ToLower(r))
			values = append(values, 0)
		}
		key := letters.String()
		if key == "" {
			return nil, fmt.Errorf("pattern %q has no letters", sc.Text())
		}
		p.patterns[key] = values
		p.maxLen = max(p.maxLen, len([]rune(key)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}

	if exceptions == nil {
		return p, nil
	}
	sc = bufio.NewScanner(exceptions)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		var word strings.Builder
		var points []int
		n := 0
		for _, r := range sc.Text() {
			if r == '-' {
				points = append(points, n)
				continue
			}
			word.WriteRune(unicode.ToLower(r))
			n++
		}
		p.exceptions[word.String()] = points
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read exceptions: %w", err)
	}
	return p, nil
}

// Positions returns the rune offsets in word where a hyphen may go.
func (p *Patterns) Positions(word string) []int {
	w := []rune(strings.ToLower(word))
	n := len(w)
	keep := func(i int) bool { return i >= p.LeftMin && i <= n-p.RightMin }

	if points, ok := p.exceptions[string(w)]; ok {
		var out []int
		for _, i := range points {
			if keep(i) {
				out = append(out, i)
			}
		}
		return out
	}

	// values[k] is the priority of the point before s[k].
	s := make([]rune, 0, n+2)
	s = append(append(append(s, '.'), w...), '.')
	values := make([]uint8, len(s)+1)
	for i := range s {
		for j := i + 1; j <= len(s) && j-i <= p.maxLen; j++ {
			pat, ok := p.patterns[string(s[i:j])]
			if !ok {
				continue
			}
			for k, v := range pat {
				values[i+k] = max(values[i+k], v)
			}
		}
	}

	var out []int
	for i := 1; i < n; i++ {
		// The point before w[i] is the point before s[i+1].
		if values[i+1]%2 == 1 && keep(i) {
			out = append(out, i)
		}
	}
	return out
}

// Points counts the hyphenation points in word. A compound such as
// "well-known" counts each part plus one point per joining hyphen, as if the
// parts were separate words. Apostrophes and digits are ignored.
func (p *Patterns) Points(word string) int {
	parts := strings.FieldsFunc(word, func(r rune) bool { return r == '-' })
	points := 0
	seen := false
	for _, part := range parts {
		letters := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, part)
		if letters == "" {
			continue
		}
		if seen {
			points++
		}
		seen = true
		points += len(p.Positions(letters))
	}
	return points
}
