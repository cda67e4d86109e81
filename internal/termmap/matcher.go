package termmap

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	wordToken = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	// placeholders as the backend may hand them back: any case, padded with spaces
	residualPlaceholder = regexp.MustCompile(`(?i)__\s*(?:MAP|TERM)_\d{3,}\s*__`)
)

// termPattern matches a glossary token case-insensitively. Alphanumeric
// tokens only match where no word character touches them on either side;
// anything else matches as a plain substring.
type termPattern struct {
	re        *regexp.Regexp
	wordBound bool
}

func compileTermPattern(token string) termPattern {
	return termPattern{
		re:        regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token)),
		wordBound: wordToken.MatchString(token),
	}
}

// spans returns the byte ranges of accepted matches. Word characters are
// Unicode letters, decimal digits, nonspacing marks and connector
// punctuation, so "VR" inside "日本VR" is not a match. RE2's \b only knows
// ASCII and cannot express this.
func (t termPattern) spans(s string) [][]int {
	all := t.re.FindAllStringIndex(s, -1)
	if !t.wordBound {
		return all
	}
	kept := all[:0]
	for _, m := range all {
		before, _ := utf8.DecodeLastRuneInString(s[:m[0]])
		after, _ := utf8.DecodeRuneInString(s[m[1]:])
		if isWordRune(before) || isWordRune(after) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func (t termPattern) MatchString(s string) bool {
	return len(t.spans(s)) > 0
}

func (t termPattern) ReplaceAllLiteralString(s, repl string) string {
	spans := t.spans(s)
	if len(spans) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range spans {
		b.WriteString(s[last:m[0]])
		b.WriteString(repl)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Pc, r)
}

// ResidualPlaceholders reports placeholder-shaped tokens left in text.
func ResidualPlaceholders(text string) []string {
	return residualPlaceholder.FindAllString(text, -1)
}

func sortedPlaceholders(replacements map[string]string) []string {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
