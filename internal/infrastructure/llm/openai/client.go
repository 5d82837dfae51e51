// Package openai generates answers through an OpenAI-compatible chat
// completions API. Any server implementing the /chat/completions
// contract works, which covers OpenAI itself and the usual proxies.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BranchZeroDevs/DataDistillerAI/internal/core/domain"
	"github.com/BranchZeroDevs/DataDistillerAI/internal/infrastructure/resilience"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithExecutor enables bounded retries and circuit breaking on chat
// calls, mirroring the treatment every other model backend gets.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generator produces grounded answers from retrieved chunks.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, chunks []domain.RetrievedChunk) (string, error) {
	request := chatRequest{
		Model: g.client.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Answer the user question only from the provided context. If the context is insufficient, say it directly."},
			{Role: "user", Content: buildUserMessage(question, chunks)},
		},
		Temperature: 0.1,
	}

	var response chatResponse
	if err := g.client.postChat(ctx, request, &response); err != nil {
		return "", err
	}
	if response.Error != nil {
		return "", fmt.Errorf("openai chat: %s (%s)", response.Error.Message, response.Error.Type)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func buildUserMessage(question string, chunks []domain.RetrievedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] document=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentID,
			chunk.Score,
			chunk.Text,
		))
	}

	return fmt.Sprintf("Question:\n%s\n\nContext:\n%s", question, contextBuilder.String())
}
