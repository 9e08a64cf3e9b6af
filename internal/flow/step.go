package flow

import (
	"github.com/BTreeMap/WorkLog/internal/fuzzy"
	"github.com/BTreeMap/WorkLog/internal/models"
	"github.com/BTreeMap/WorkLog/internal/session"
)

// Kind classifies a step by the input it accepts.
type Kind int

const (
	// KindMenu offers a fixed or catalog-driven list of choices.
	KindMenu Kind = iota
	// KindCapture accepts free text, a number or a date.
	KindCapture
	// KindConfirm shows the collected buffer and offers commit or restart.
	KindConfirm
)

func (k Kind) String() string {
	switch k {
	case KindMenu:
		return "menu"
	case KindCapture:
		return "capture"
	case KindConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// Choice is one selectable option of a prompt.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Prompt is the render-agnostic reply of a turn. Transports decide how to
// display Choices and how many of them fit.
type Prompt struct {
	Text    string   `json:"text"`
	Choices []Choice `json:"choices,omitempty"`
}

// Input is one inbound turn. Selection carries the id of a tapped choice and
// takes precedence over Text when set.
type Input struct {
	Text      string
	Selection string
}

// Step describes one node of the conversation graph.
type Step struct {
	ID   models.StepID
	Flow models.FlowType
	Kind Kind
	// Returnable steps push a history entry before advancing, so "back" from
	// the next screen comes here.
	Returnable bool
	Render     func(t *turn) (Prompt, error)
	Handle     func(t *turn, in Input) (Outcome, error)
}

type outcomeKind int

const (
	outReprompt outcomeKind = iota
	outAdvance
	outComplete
	outRestart
	outBack
)

// Outcome is what a step handler decides for a turn. Invalid input is an
// outcome, not an error.
type Outcome struct {
	kind    outcomeKind
	next    models.StepID
	values  session.Buffer
	message string
}

// Reprompt re-renders the current step with an inline message. Step and
// buffer stay unchanged.
func Reprompt(msg string) Outcome {
	return Outcome{kind: outReprompt, message: msg}
}

// Advance merges values into the buffer and moves to next.
func Advance(next models.StepID, values session.Buffer) Outcome {
	return Outcome{kind: outAdvance, next: next, values: values}
}

// Complete clears the session and shows the root menu after msg.
func Complete(msg string) Outcome {
	return Outcome{kind: outComplete, message: msg}
}

// Restart drops history, replaces the buffer with values and enters step.
func Restart(step models.StepID, values session.Buffer) Outcome {
	return Outcome{kind: outRestart, next: step, values: values}
}

// Back returns to the previous screen, or the root menu if there is none.
func Back() Outcome {
	return Outcome{kind: outBack}
}

func toChoices(cands []fuzzy.Candidate) []Choice {
	out := make([]Choice, len(cands))
	for i, c := range cands {
		out[i] = Choice{ID: c.ID, Label: c.Label}
	}
	return out
}

func toCandidates(choices []Choice) []fuzzy.Candidate {
	out := make([]fuzzy.Candidate, len(choices))
	for i, c := range choices {
		out[i] = fuzzy.Candidate{ID: c.ID, Label: c.Label}
	}
	return out
}
