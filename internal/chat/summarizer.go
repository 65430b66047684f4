package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
)

// Summarizer condenses the turns that are about to fall outside the active
// context window into one cohesive text blob. It recomputes from scratch on
// every qualifying turn rather than folding in a prior summary; simpler and
// costlier, see DESIGN.md.
type Summarizer struct {
	Model Generator
	Name  string
}

// Summarize produces a summary of the given turns. Temperature is pinned to
// zero for reproducibility.
func (s *Summarizer) Summarize(ctx context.Context, turns []Turn, userID string) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("summarize: no turns to summarize")
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Content)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.Name),
		Temperature: openai.Float(0),
		User:        openai.String(userID),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizerPrompt),
			openai.UserMessage("Conversation so far:\n" + transcript.String()),
		},
	}

	resp, err := s.Model.Generate(ctx, params)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarize: model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

const summarizerPrompt = `
You are a **non-user-facing AI agent** whose sole responsibility is to **condense and summarize** the conversation transcript so the main interviewer chatbot can keep context within token limits. Follow these rules:

1. Focus on Key Points
   - Extract essential information about student-centered collaboration: key interactions, experiences, important events or insights, and relevant social network details.
   - Disregard chit-chat, fillers, or overly repetitive text.

2. Stay Objective and Neutral
   - Do not add or change meaning.
   - Avoid personal opinions, evaluations, or speculation about the user's motivations.

3. Preserve Critical Details
   - If the user mentions specific people, keep their names/roles and any unique insights that may guide later questioning.
   - If the user references important instruments, tools, or events, ensure they're included.

4. Be Concise and Cohesive
   - Aim for a concise summary that captures the essential discussion points.
   - Retain enough context so the interviewer AI can continue smoothly without missing big topics.

5. No Leakage
   - Do not include internal system instructions, private reasoning, or chain-of-thought details.
   - Only use the visible user/assistant messages to form your summary.

6. Output Format
   - Return a **complete textual summary** of the conversation so far.
   - Do **not** produce user-facing content; your summary is for the interviewer AI only.

### Example

> **Conversation Excerpt**:
> *User:* "I discussed collaboration with Jane, my mentor, and we used a shared Google Doc."
> *Assistant:* "Great, how did that tool help your learning?"

> **Your Summary**:
> "The user spoke about a discussion with their mentor, Jane, focusing on collaboration. They relied on a shared Google Doc as a tool to support their learning."
`
