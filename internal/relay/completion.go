package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const maxReplyTokens = 1024

// ChatMessage is a role+content pair forwarded to the external
// providers.
type ChatMessage struct {
	Role    string
	Content string
}

// Fragment is one streamed piece of the assistant reply. A non-nil Err
// is terminal: the channel is closed right after it, and no further text
// follows.
type Fragment struct {
	Text string
	Err  error
}

// CompletionRelay forwards a chat transcript to the completion provider
// and relays the incoming token stream.
type CompletionRelay struct {
	client *openai.Client
	model  string
}

// NewCompletionRelay builds a relay against the provider at baseURL
// (empty means the public OpenAI endpoint).
func NewCompletionRelay(apiKey, baseURL, model string) *CompletionRelay {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &CompletionRelay{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// StreamReply opens a streaming completion request carrying the system
// prompt plus the full prior transcript and yields each text fragment as
// it arrives. The sequence is finite and not restartable; the consumer
// owns concatenating fragments and persisting the final reply.
func (r *CompletionRelay) StreamReply(ctx context.Context, history []ChatMessage, systemPrompt string) <-chan Fragment {
	out := make(chan Fragment)
	go func() {
		defer close(out)

		msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
		for _, m := range history {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}

		stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:     r.model,
			MaxTokens: maxReplyTokens,
			Messages:  msgs,
			Stream:    true,
		})
		if err != nil {
			emit(ctx, out, Fragment{Err: fmt.Errorf("failed to open completion stream: %w", err)})
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, out, Fragment{Err: fmt.Errorf("completion stream failed: %w", err)})
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !emit(ctx, out, Fragment{Text: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()
	return out
}

// emit reports false when the consumer is gone.
func emit(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
