package detect

import (
	"regexp"
	"strings"
)

// Detector extracts candidate interview questions from transcript text. The
// catalog is behind an interface so it can be extended or swapped without
// touching the session orchestration.
type Detector interface {
	Extract(text string) []string
}

// minSentenceLen filters out fragments the splitter produces around filler
// words and clipped chunk boundaries.
const minSentenceLen = 10

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+|\n+`)

	// The wh-word and auxiliary groups are anchored to the sentence start:
	// in interrogative position they open the sentence, while mid-sentence
	// occurrences are ordinary declaratives ("we talked about what
	// happened"). The imperative phrasings are questions wherever they sit.
	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(what|why|how|when|where|who|which)\b`),
		regexp.MustCompile(`^(can you|could you|would you|will you)\b`),
		regexp.MustCompile(`^(have you|do you|did you|are you|were you)\b`),
		regexp.MustCompile(`\b(tell me about|describe|explain|walk me through)\b`),
		regexp.MustCompile(`\b(give me an example|give an example|share an experience|share an example)\b`),
		regexp.MustCompile(`\b(talk about a (time|situation)|describe a time)\b`),
	}
)

// Catalog is the default pattern-based detector.
type Catalog struct{}

func NewCatalog() Catalog { return Catalog{} }

// Extract splits text into sentences on terminal punctuation and newlines
// and returns every sentence that looks interrogative, with a question mark
// restored (the splitter consumes it). Empty or malformed input yields nil.
func (Catalog) Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < minSentenceLen {
			continue
		}
		if IsQuestion(sentence) {
			if !strings.HasSuffix(sentence, "?") {
				sentence += "?"
			}
			out = append(out, sentence)
		}
	}
	return out
}

// IsQuestion reports whether a single sentence matches the interrogative
// catalog. A literal question mark always counts.
func IsQuestion(sentence string) bool {
	if strings.Contains(sentence, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(sentence))
	for _, p := range questionPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Normalize produces the identity used for question de-duplication: trimmed,
// case-folded, trailing terminal punctuation stripped.
func Normalize(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	return strings.TrimRight(s, "?.! ")
}
