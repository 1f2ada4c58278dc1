package llm

import (
	"sync"
	"testing"

	vertexgenai "cloud.google.com/go/vertexai/genai"
)

// Answer generations run concurrently, one goroutine per detected question,
// so building a request must never write to the shared model.
func TestRequestModelDoesNotMutateShared(t *testing.T) {
	v := &VertexGemini{model: &vertexgenai.GenerativeModel{}}

	systems := []string{"you are a coach", "you are a summarizer", ""}
	var wg sync.WaitGroup
	results := make([]*vertexgenai.GenerativeModel, len(systems))
	for i, sys := range systems {
		wg.Add(1)
		go func(i int, sys string) {
			defer wg.Done()
			results[i] = v.requestModel(sys)
		}(i, sys)
	}
	wg.Wait()

	if v.model.SystemInstruction != nil {
		t.Fatal("shared model mutated by request construction")
	}
	for i, sys := range systems {
		m := results[i]
		if m == v.model {
			t.Fatalf("request %d aliases the shared model", i)
		}
		if sys == "" {
			if m.SystemInstruction != nil {
				t.Errorf("request %d: instruction = %v, want none", i, m.SystemInstruction)
			}
			continue
		}
		if m.SystemInstruction == nil || len(m.SystemInstruction.Parts) != 1 {
			t.Fatalf("request %d: missing system instruction", i)
		}
		if got := m.SystemInstruction.Parts[0].(vertexgenai.Text); string(got) != sys {
			t.Errorf("request %d: instruction = %q, want %q", i, got, sys)
		}
	}
}
