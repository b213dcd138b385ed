package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Summarizer condenses a conversation excerpt into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (string, error)
}

const summaryPromptFormat = `Summarize the following %d-second conversation between a candidate and a panel. Be concise and return 3-4 bullet points.

Conversation:
%s`

type GeminiSummarizer struct {
	client          *genai.Client
	model           *genai.GenerativeModel
	intervalSeconds int
}

// NewGeminiSummarizer builds a summarizer backed by Gemini.
// intervalSeconds is the length of the conversation window and only
// shapes the prompt.
func NewGeminiSummarizer(
	ctx context.Context,
	apiKey string,
	intervalSeconds int,
) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-1.5-flash")
	model.GenerationConfig.SetMaxOutputTokens(512)
	model.GenerationConfig.SetTemperature(0.2)

	return &GeminiSummarizer{
		client:          client,
		model:           model,
		intervalSeconds: intervalSeconds,
	}, nil
}

func (g *GeminiSummarizer) Summarize(
	ctx context.Context,
	conversation string,
) (string, error) {
	prompt := BuildPrompt(g.intervalSeconds, conversation)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}

func (g *GeminiSummarizer) Close() error {
	return g.client.Close()
}

// BuildPrompt renders the summarization prompt for a conversation
// excerpt covering intervalSeconds of audio.
func BuildPrompt(intervalSeconds int, conversation string) string {
	return fmt.Sprintf(summaryPromptFormat, intervalSeconds, conversation)
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return strings.TrimSpace(text.String())
}
