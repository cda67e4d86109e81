package termmap

// TermMap maps source language phrases to a fixed target language rendering.
type TermMap map[string]string

// Glossary configures the protector: protected terms are emitted verbatim,
// mapped phrases are replaced by their configured rendering.
type Glossary struct {
	Protected []string `yaml:"protected" json:"protected"`
	Mapped    TermMap  `yaml:"mapped" json:"mapped"`
}

func (g Glossary) IsEmpty() bool {
	return len(g.Protected) == 0 && len(g.Mapped) == 0
}

// ProtectedText is the output of Protect. Replacements maps each placeholder
// to the value it is restored to.
type ProtectedText struct {
	Text         string
	Replacements map[string]string
}
