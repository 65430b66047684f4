package chat

import (
	"context"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/packages/ssestream"
)

// Generator is the single-shot model call the moderator and summarizer use.
type Generator interface {
	Generate(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Streamer is the incremental model call the interviewer uses.
type Streamer interface {
	Stream(ctx context.Context, params openai.ChatCompletionNewParams) (*ssestream.Stream[openai.ChatCompletionChunk], error)
}

// ModelClient is the retrying wrapper around the OpenAI client. Both call
// modes share the identical retry contract.
type ModelClient struct {
	api    openai.Client
	policy RetryPolicy
}

var (
	_ Generator = (*ModelClient)(nil)
	_ Streamer  = (*ModelClient)(nil)
)

func NewModelClient(api openai.Client, policy RetryPolicy) *ModelClient {
	return &ModelClient{api: api, policy: policy}
}

func (c *ModelClient) Generate(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return withRetry(ctx, c.policy, "generate", func() (*openai.ChatCompletion, error) {
		return c.api.Chat.Completions.New(ctx, params)
	})
}

// Stream retries establishing the stream; once the stream is handed out,
// mid-stream failures are the consumer's to observe. Partial output on a
// dropped connection is acceptable to lose.
func (c *ModelClient) Stream(ctx context.Context, params openai.ChatCompletionNewParams) (*ssestream.Stream[openai.ChatCompletionChunk], error) {
	return withRetry(ctx, c.policy, "stream", func() (*ssestream.Stream[openai.ChatCompletionChunk], error) {
		stream := c.api.Chat.Completions.NewStreaming(ctx, params)
		if err := stream.Err(); err != nil {
			_ = stream.Close()
			return nil, err
		}
		return stream, nil
	})
}
