package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	m := c.GenerativeModel(modelName)
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Name() string { return "gemini" }

func (v *VertexGemini) Close() error { return v.client.Close() }

// requestModel returns a per-call copy of the shared model. Completions run
// concurrently (one per detected question), so the system instruction must
// never be written to shared state.
func (v *VertexGemini) requestModel(system string) *vertexgenai.GenerativeModel {
	m := *v.model
	if system != "" {
		m.SystemInstruction = &vertexgenai.Content{
			Parts: []vertexgenai.Part{vertexgenai.Text(system)},
		}
	}
	return &m
}

// Complete streams the generation and accumulates it into the full answer
// text. The caller only ever needs the complete STAR document, so partial
// chunks are not surfaced.
func (v *VertexGemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	m := v.requestModel(system)

	var full strings.Builder
	it := m.GenerateContentStream(ctx, vertexgenai.Text(prompt))
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok {
					full.WriteString(string(t))
				}
			}
		}
	}

	return full.String(), nil
}
