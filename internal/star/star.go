// Package star builds prompts for and parses Situation/Task/Action/Result
// answers. The structured answer is a prompt contract with the LLM provider;
// parsing tolerates the header styles models actually emit.
package star

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	FormatBullets = "bullets"
	FormatFull    = "full"
)

// Answer is the four-field structured response. Fields may be empty; the
// answer is valid when at least one is populated. Immutable once produced.
type Answer struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`

	Raw string `json:"-"` // full provider response, kept for display
}

func (a *Answer) Valid() bool {
	return a.Situation != "" || a.Task != "" || a.Action != "" || a.Result != ""
}

const systemPrompt = `You are an expert interview coach. You answer behavioral interview questions in STAR format (Situation, Task, Action, Result), grounding every answer in the candidate's own experience as captured in the transcript. If the transcript lacks relevant experience, construct a plausible professional answer and say so.`

// BuildPrompt renders the user prompt for a STAR answer. format is
// FormatBullets (short bullet points per section) or FormatFull (narrative
// paragraphs).
func BuildPrompt(question, transcript, format string) (system, prompt string) {
	style := "Write each section as 2-4 short bullet points."
	if format == FormatFull {
		style = "Write each section as a full paragraph."
	}

	prompt = fmt.Sprintf(`Interview/meeting transcript:
%s

Question: %s

Answer the question in STAR format. %s
Label the sections exactly:
Situation:
Task:
Action:
Result:`, transcript, question, style)

	return systemPrompt, prompt
}

// quickSystem trades depth for latency; used for answers generated live
// while the interview is still running.
const quickSystem = `You are an interview coach whispering answers in real time. Reply with a compact STAR answer, one or two bullets per section, no preamble.`

func BuildQuickPrompt(question, transcript string) (system, prompt string) {
	prompt = fmt.Sprintf(`Transcript so far:
%s

Question just asked: %s

Give a compact STAR answer. Label the sections:
Situation:
Task:
Action:
Result:`, transcript, question)
	return quickSystem, prompt
}

// sectionRe matches a section header at the start of a line: optional
// bullet/emphasis noise, the label, a colon. Case-insensitive.
var sectionRe = regexp.MustCompile(`(?im)^[\s*#>-]*(situation|task|action|result)\b[\s*]*:[\s*]*`)

// Parse splits a provider response into the four components. Text before the
// first header is discarded (models often add a lead-in sentence). A response
// with no headers at all ends up entirely in Situation so it is still valid
// and displayable.
func Parse(raw string) *Answer {
	a := &Answer{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return a
	}

	locs := sectionRe.FindAllStringSubmatchIndex(trimmed, -1)
	if len(locs) == 0 {
		a.Situation = trimmed
		return a
	}

	for i, loc := range locs {
		label := strings.ToLower(trimmed[loc[2]:loc[3]])
		end := len(trimmed)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(trimmed[loc[1]:end])

		switch label {
		case "situation":
			a.Situation = body
		case "task":
			a.Task = body
		case "action":
			a.Action = body
		case "result":
			a.Result = body
		}
	}
	return a
}

// Format renders the answer for display: labeled bullet blocks, or flowing
// paragraphs for FormatFull. Empty sections are omitted.
func (a *Answer) Format(format string) string {
	sections := []struct {
		label, body string
	}{
		{"Situation", a.Situation},
		{"Task", a.Task},
		{"Action", a.Action},
		{"Result", a.Result},
	}

	var b strings.Builder
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if format == FormatFull {
			fmt.Fprintf(&b, "%s: %s", s.label, s.body)
		} else {
			fmt.Fprintf(&b, "**%s**\n%s", s.label, bulletize(s.body))
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(a.Raw)
	}
	return b.String()
}

// bulletize ensures every non-empty line carries a bullet marker.
func bulletize(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "•") && !strings.HasPrefix(line, "*") {
			line = "- " + line
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
