package copilot

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/c360/opsgraph/errors"
)

// Completer is the narrow slice of a chat-completion backend the copilot
// needs. The hosted model is an opaque text-completion function; no trust is
// placed in its output until validated.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// OpenAICompleter adapts the OpenAI chat API to the Completer interface
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer for the given API key and model.
// Model defaults to gpt-4o-mini.
func NewOpenAICompleter(apiKey, model string) *OpenAICompleter {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Complete sends one user prompt and returns the raw completion text
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", errors.WrapTransient(err, "OpenAICompleter", "Complete", "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.WrapTransient(errors.ErrGenerationFailed, "OpenAICompleter", "Complete", "empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const generatePromptFormat = `You are a Cypher query generator for a property graph database. Generate a READ-ONLY query (MATCH/RETURN only) based on the user's question.

Rules:
- Only use MATCH and RETURN clauses
- Do NOT use CREATE, DELETE, MERGE, SET, DROP, REMOVE, or any write operations
- If teamId is provided, filter by Team {id: teamId}
- Limit results to reasonable size (LIMIT 20-50)
- Return readable results with meaningful column names

User question: %q
%s
Generate ONLY the Cypher query, no explanations:`

// Generator drafts candidate queries via the language model when the
// catalog has no template. Its output is untrusted and goes through the
// safety validator exactly like a template query; there is no retry loop
// and no automatic repair prompting.
type Generator struct {
	completer Completer
}

// NewGenerator creates a fallback generator. A nil completer is allowed;
// Generate then fails with ErrNoCompleter.
func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate asks the model for one candidate query.
func (g *Generator) Generate(ctx context.Context, text, teamID string) (string, error) {
	if g.completer == nil {
		return "", errors.WrapInvalid(errors.ErrNoCompleter, "Generator", "Generate",
			"no template matched and no completion backend configured")
	}

	teamHint := ""
	if teamID != "" {
		teamHint = fmt.Sprintf("Team filter: %s\n", teamID)
	}
	prompt := fmt.Sprintf(generatePromptFormat, text, teamHint)

	raw, err := g.completer.Complete(ctx, prompt, 0.3, 500)
	if err != nil {
		return "", errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrGenerationFailed, err),
			"Generator", "Generate", "model call")
	}

	query := stripCodeFences(raw)
	if query == "" {
		return "", errors.WrapInvalid(errors.ErrGenerationFailed, "Generator", "Generate",
			"model returned empty query")
	}
	return query, nil
}

// stripCodeFences removes a surrounding markdown code block if the model
// wrapped its answer in one.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], " (") {
		// Drop a language tag like "cypher" on the fence line
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
