// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"insight-qa-go/internal/config"
	"insight-qa-go/pkg/log"
	"insight-qa-go/pkg/metrics"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse 表示模型没有返回任何内容。
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Client defines the interface for an LLM client.
type Client interface {
	// Generate 以单条 user 消息调用聊天接口，返回完整文本。
	Generate(ctx context.Context, prompt string) (string, error)
	// ChatMessages 以 role-based 消息与可选生成参数调用聊天接口。
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates a new LLM client for an OpenAI-compatible chat completions API.
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (c *openAICompatibleClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.ChatMessages(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: prompt}}, nil)
}

func (c *openAICompatibleClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	// 传参优先，否则从全局配置注入
	if gen != nil {
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.TopP != nil {
			req.TopP = float32(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
	} else {
		req.Temperature = float32(c.cfg.Generation.Temperature)
		req.TopP = float32(c.cfg.Generation.TopP)
		req.MaxTokens = c.cfg.Generation.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	metrics.ExternalRequestDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExternalRequestsTotal.WithLabelValues("llm", "error").Inc()
		log.Errorf("[LLMClient] 调用聊天接口失败, model: %s, error: %v", c.cfg.Model, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat api error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.ExternalRequestsTotal.WithLabelValues("llm", "error").Inc()
		return "", ErrEmptyResponse
	}
	metrics.ExternalRequestsTotal.WithLabelValues("llm", "success").Inc()
	log.Debugf("[LLMClient] 聊天接口返回成功, tokens: %d, 耗时: %s", resp.Usage.TotalTokens, time.Since(start))
	return resp.Choices[0].Message.Content, nil
}
