package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Generator answers one-shot text prompts.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Generator for model.
func NewGenerator(client *genai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Generate implements chat.Generator.
func (g *Generator) Generate(ctx context.Context, prompt, instruction string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), generateConfig(instruction))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

func generateConfig(instruction string) *genai.GenerateContentConfig {
	if instruction == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
	}
}
