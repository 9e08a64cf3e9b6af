package messaging

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/WorkLog/internal/flow"
)

// Renderer turns a flow.Prompt into chat text with a numbered choice list.
type Renderer struct {
	maxChoices int
}

// NewRenderer creates a Renderer. maxChoices <= 0 shows every choice.
func NewRenderer(maxChoices int) *Renderer {
	if maxChoices < 0 {
		maxChoices = 0
	}
	return &Renderer{maxChoices: maxChoices}
}

// Render formats p. Numbers match the 1-based indexes the engine resolves,
// so hidden choices stay reachable by number or by typing their name.
func (r *Renderer) Render(p flow.Prompt) string {
	var b strings.Builder
	b.WriteString(p.Text)
	if len(p.Choices) == 0 {
		return b.String()
	}
	shown := p.Choices
	if r.maxChoices > 0 && len(shown) > r.maxChoices {
		shown = shown[:r.maxChoices]
	}
	b.WriteString("\n")
	for i, c := range shown {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Label)
	}
	if hidden := len(p.Choices) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "\n...and %d more, type a name to find it.", hidden)
	}
	return b.String()
}
