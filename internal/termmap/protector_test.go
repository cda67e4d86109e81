package termmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtector_RoundTripWithEchoBackend(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"Unity"}})

	protected := p.Protect("Unity plugin for VR")
	assert.Equal(t, "__TERM_001__ plugin for VR", protected.Text)
	assert.Equal(t, map[string]string{"__TERM_001__": "Unity"}, protected.Replacements)

	echoed := protected.Text + " [VR]"
	assert.Equal(t, "Unity plugin for VR [VR]", p.Restore(echoed, protected))
}

func TestProtector_LongestFirst(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"VR", "VR headset"}})

	protected := p.Protect("Use a VR headset")
	assert.Equal(t, "Use a __TERM_001__", protected.Text)
	assert.Len(t, protected.Replacements, 1)
	assert.Equal(t, "VR headset", protected.Replacements["__TERM_001__"])
}

func TestProtector_PhrasesBeforeTermsSharedCounter(t *testing.T) {
	p := NewProtector(Glossary{
		Protected: []string{"Unity"},
		Mapped:    TermMap{"skill folder": "技能文件夹"},
	})

	protected := p.Protect("Unity skill folder")
	assert.Equal(t, "__TERM_002__ __MAP_001__", protected.Text)
	assert.Equal(t, "Unity 技能文件夹", p.Restore(protected.Text, protected))
}

func TestProtector_WordBoundaryAndCase(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"elf"}})

	protected := p.Protect("She found herself alone.")
	assert.Equal(t, "She found herself alone.", protected.Text)
	assert.Empty(t, protected.Replacements)

	protected = p.Protect("The Elf cast a spell.")
	assert.Equal(t, "The __TERM_001__ cast a spell.", protected.Text)
	assert.Equal(t, "The elf cast a spell.", p.Restore(protected.Text, protected))
}

func TestProtector_WordBoundaryIsUnicodeAware(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"VR"}})

	tests := []struct {
		input string
		want  string
	}{
		{input: "日本VR", want: "日本VR"},
		{input: "VR日本", want: "VR日本"},
		{input: "caféVR", want: "caféVR"},
		{input: "VR_mode", want: "VR_mode"},
		{input: "日本 VR", want: "日本 __TERM_001__"},
		{input: "（VR）と VR", want: "（__TERM_001__）と __TERM_001__"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			protected := p.Protect(tt.input)
			assert.Equal(t, tt.want, protected.Text)
			assert.Equal(t, tt.input, p.Restore(protected.Text, protected))
		})
	}
}

func TestProtector_NonWordTokensMatchAsSubstring(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"C#"}})

	protected := p.Protect("Use c#10 features")
	assert.Equal(t, "Use __TERM_001__10 features", protected.Text)
	assert.Equal(t, "Use C#10 features", p.Restore(protected.Text, protected))
}

func TestProtector_CounterAdvancesOnlyOnMatch(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"Zebra", "Unity"}})

	protected := p.Protect("Unity rocks")
	assert.Equal(t, "__TERM_001__ rocks", protected.Text)
}

func TestProtector_BlankInputIsNoop(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"Unity"}})

	for _, in := range []string{"", "   ", "\n\t"} {
		protected := p.Protect(in)
		assert.Equal(t, in, protected.Text)
		assert.Empty(t, protected.Replacements)
	}
}

func TestNewProtector_DropsBlankAndDuplicateTerms(t *testing.T) {
	p := NewProtector(Glossary{
		Protected: []string{"Unity", "unity", " ", ""},
		Mapped:    TermMap{"": "x", "Pull Request": "拉取请求", "pull request": "PR"},
	})
	require.Len(t, p.candidates, 2)
	assert.Equal(t, "MAP", p.candidates[0].prefix)
	assert.Equal(t, "TERM", p.candidates[1].prefix)
	assert.Equal(t, "Unity", p.candidates[1].value)
}

func TestProtector_AlteredPlaceholderStaysUnresolved(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"Unity"}})
	protected := p.Protect("Unity plugin")

	translated := "__term_001__ 插件"
	restored := p.Restore(translated, protected)

	assert.Equal(t, translated, restored)
	assert.Equal(t, []string{"__TERM_001__"}, protected.Missing(translated))
	assert.Equal(t, []string{"__term_001__"}, ResidualPlaceholders(restored))
}

func TestProtector_DroppedPlaceholderIsMissingNotResidual(t *testing.T) {
	p := NewProtector(Glossary{Protected: []string{"Unity"}})
	protected := p.Protect("Unity plugin")

	translated := "插件"
	assert.Equal(t, []string{"__TERM_001__"}, protected.Missing(translated))
	assert.Empty(t, ResidualPlaceholders(p.Restore(translated, protected)))
}

func TestNilProtector(t *testing.T) {
	var p *Protector
	protected := p.Protect("Unity plugin")
	assert.Equal(t, "Unity plugin", protected.Text)
	assert.Equal(t, "Unity plugin", p.Restore("Unity plugin", protected))
}
