package aicompletion

import (
	"context"
	"errors"

	"github.com/dailyos/dailyos/internal/llm"
)

// LLMCompleter adapts an llm.Client (Ollama/Anthropic/MultiClient) to
// the Completer interface, routing each Tier to its configured model
// name. Keeps the internal/llm provider clients as-is and only needs a
// single-prompt completion shape instead of a multi-turn chat loop.
type LLMCompleter struct {
	client          llm.Client
	extractionModel string
	synthesisModel  string
}

// NewLLMCompleter wraps client, using extractionModel for
// TierExtraction requests and synthesisModel for TierSynthesis ones.
func NewLLMCompleter(client llm.Client, extractionModel, synthesisModel string) *LLMCompleter {
	return &LLMCompleter{client: client, extractionModel: extractionModel, synthesisModel: synthesisModel}
}

// Complete implements Completer by issuing a single-turn chat request
// and returning the assistant's reply text.
func (c *LLMCompleter) Complete(ctx context.Context, req Request) (string, error) {
	model := c.synthesisModel
	if req.Tier == TierExtraction {
		model = c.extractionModel
	}

	var messages []llm.Message
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Prompt})

	resp, err := c.client.Chat(ctx, model, messages, nil)
	if err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}
	return resp.Message.Content, nil
}
