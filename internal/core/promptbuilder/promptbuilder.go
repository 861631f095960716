// Package promptbuilder assembles the system prompt sent with each
// translation request: the caller's base instructions, glossary terms to
// preserve, and a sliding-window of passive context carried over from the
// previous batch for continuity.
package promptbuilder

import (
	"fmt"
	"strings"
)

// glossaryPlaceholder is substituted with the rendered glossary block, or
// removed entirely when there is no glossary.
const glossaryPlaceholder = "{{glossary}}"

// Builder renders a base system prompt template with glossary and passive
// context sections.
type Builder struct {
	baseSystemPrompt string
}

// New creates a Builder around baseSystemPrompt, which may contain a
// {{glossary}} placeholder.
func New(baseSystemPrompt string) *Builder {
	return &Builder{baseSystemPrompt: baseSystemPrompt}
}

// Build renders the final system prompt for one batch request.
// passiveContext is the trailing window of already-translated source
// text from the previous batch, included read-only for continuity.
func (b *Builder) Build(glossary map[string]string, gameContext string, passiveContext []string) string {
	prompt := b.baseSystemPrompt

	if len(glossary) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nGlossary (preserve these terms exactly as specified):\n")
		for original, translated := range glossary {
			fmt.Fprintf(&sb, "- %q -> %q\n", original, translated)
		}
		prompt = strings.Replace(prompt, glossaryPlaceholder, sb.String(), 1)
	} else {
		prompt = strings.Replace(prompt, glossaryPlaceholder, "", 1)
	}

	if gameContext != "" {
		prompt += "\n\nGame context: " + gameContext
	}

	if len(passiveContext) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\n---\nPASSIVE CONTEXT (previous lines for reference - DO NOT translate these):\n")
		for i, line := range passiveContext {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
		}
		sb.WriteString("---\n")
		prompt += sb.String()
	}

	return prompt
}
