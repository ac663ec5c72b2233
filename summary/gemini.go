package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"google.golang.org/genai"

	"parley/db"
)

// DefaultModel is the text model used for summaries. The live dialog model
// is audio-first, so the cheaper text model handles the post-hoc writeup.
const DefaultModel = "gemini-2.5-flash"

const promptTemplate = `Please provide a concise and professional summary of this interview conversation.

Focus on:
- Key topics and themes discussed
- Main insights or information shared
- Overall tone and flow of the conversation
- Any notable highlights or important points

Keep the summary under 200 words and make it useful for someone who wasn't present.

Interview Transcript:
%s`

// GeminiSummarizer generates summaries with the Gemini text API.
type GeminiSummarizer struct {
	APIKey string
	Model  string
	Logger *log.Logger
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, utterances []db.Utterance) (string, error) {
	transcript := Transcript(utterances)
	if strings.TrimSpace(transcript) == "" {
		return NothingToSummarize, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("summary client: %w", err)
	}

	model := g.Model
	if model == "" {
		model = DefaultModel
	}

	prompt := fmt.Sprintf(promptTemplate, transcript)
	response, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return Fallback, nil
	}
	g.Logger.Info("summary generated", "chars", len(text))
	return text, nil
}

// Transcript renders utterances as "SPEAKER: text" lines in sequence order.
// The same rendering is persisted as the interview's full transcript.
func Transcript(utterances []db.Utterance) string {
	var sb strings.Builder
	for i, u := range utterances {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.ToUpper(string(u.Speaker)))
		sb.WriteString(": ")
		sb.WriteString(u.Text)
	}
	return sb.String()
}
