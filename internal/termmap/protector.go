package termmap

import (
	"fmt"
	"slices"
	"strings"
)

type candidate struct {
	pattern termPattern
	value   string
	prefix  string
}

// Protector swaps glossary entries for translator-inert placeholders before a
// backend call and puts them back afterwards. It is safe for concurrent use.
type Protector struct {
	candidates []candidate
}

// NewProtector builds a protector. Mapped phrases are tried before protected
// terms; inside each group longer entries win. Blank entries are ignored and
// duplicates are folded case-insensitively.
func NewProtector(g Glossary) *Protector {
	p := &Protector{}

	phrases := make([]string, 0, len(g.Mapped))
	for k := range g.Mapped {
		if strings.TrimSpace(k) != "" {
			phrases = append(phrases, k)
		}
	}
	slices.SortFunc(phrases, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	seen := make(map[string]struct{}, len(phrases))
	for _, phrase := range phrases {
		folded := strings.ToLower(phrase)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		p.candidates = append(p.candidates, candidate{
			pattern: compileTermPattern(phrase),
			value:   g.Mapped[phrase],
			prefix:  "MAP",
		})
	}

	terms := make([]string, 0, len(g.Protected))
	seen = make(map[string]struct{}, len(g.Protected))
	for _, term := range g.Protected {
		if strings.TrimSpace(term) == "" {
			continue
		}
		folded := strings.ToLower(term)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		terms = append(terms, term)
	}
	slices.SortStableFunc(terms, func(a, b string) int {
		return len(b) - len(a)
	})
	for _, term := range terms {
		p.candidates = append(p.candidates, candidate{
			pattern: compileTermPattern(term),
			value:   term,
			prefix:  "TERM",
		})
	}

	return p
}

// Protect replaces every glossary occurrence with a numbered placeholder. The
// counter only advances when a candidate actually matched.
func (p *Protector) Protect(input string) ProtectedText {
	replacements := make(map[string]string)
	if p == nil || strings.TrimSpace(input) == "" {
		return ProtectedText{Text: input, Replacements: replacements}
	}

	output := input
	counter := 1
	for _, c := range p.candidates {
		if !c.pattern.MatchString(output) {
			continue
		}
		placeholder := fmt.Sprintf("__%s_%03d__", c.prefix, counter)
		output = c.pattern.ReplaceAllLiteralString(output, placeholder)
		replacements[placeholder] = c.value
		counter++
	}

	return ProtectedText{Text: output, Replacements: replacements}
}

// Restore puts recorded values back with literal replacement. A placeholder
// the backend reworded stays in the text as-is.
func (p *Protector) Restore(text string, protected ProtectedText) string {
	if strings.TrimSpace(text) == "" || len(protected.Replacements) == 0 {
		return text
	}

	output := text
	for _, placeholder := range sortedPlaceholders(protected.Replacements) {
		output = strings.ReplaceAll(output, placeholder, protected.Replacements[placeholder])
	}
	return output
}

// Missing lists placeholders that do not appear verbatim in translated.
func (pt ProtectedText) Missing(translated string) []string {
	var missing []string
	for _, placeholder := range sortedPlaceholders(pt.Replacements) {
		if !strings.Contains(translated, placeholder) {
			missing = append(missing, placeholder)
		}
	}
	return missing
}
