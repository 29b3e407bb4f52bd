package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIChat(apiKey, model string) *OpenAIChat {
	if model == "" {
		model = openai.GPT4TurboPreview
	}
	return &OpenAIChat{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0.7,
		maxTokens:   150,
	}
}

func (o *OpenAIChat) Close() error { return nil }

func (o *OpenAIChat) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)

		stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model: o.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: InterviewerInstruction},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
			Stream:      true,
		})
		if err != nil {
			errs <- fmt.Errorf("OpenAI API error: %w", err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("OpenAI stream error: %w", err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			out <- resp.Choices[0].Delta.Content
		}
	}()

	return out, errs
}
