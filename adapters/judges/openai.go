package judges

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"hvt/domain/core"
)

const (
	DefaultSystemPrompt = "You are a strict verifier that outputs a score between 0 and 1."
	DefaultUserTemplate = "Prompt: {prompt}\nCandidate: {candidate}\nScore between 0 and 1:"
)

// ChatClient sends one system and one user message and returns the reply text
type ChatClient interface {
	ChatCompletion(ctx context.Context, model, system, user string) (string, error)
}

// OpenAIConfig configures the remote judge
type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	SystemPrompt string
	UserTemplate string
}

// OpenAIJudge asks a chat model for a score and parses the first token of the reply
type OpenAIJudge struct {
	client       ChatClient
	model        string
	systemPrompt string
	userTemplate string
}

// NewOpenAIJudge creates a judge backed by the OpenAI chat completions API
func NewOpenAIJudge(cfg OpenAIConfig) (*OpenAIJudge, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: OpenAI judge requires an API key", core.ErrInvalidArgument)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return NewOpenAIJudgeWithClient(&openAIChatClient{client: openai.NewClientWithConfig(clientCfg)}, cfg), nil
}

// NewOpenAIJudgeWithClient creates the judge over any chat client
func NewOpenAIJudgeWithClient(client ChatClient, cfg OpenAIConfig) *OpenAIJudge {
	j := &OpenAIJudge{
		client:       client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		userTemplate: cfg.UserTemplate,
	}
	if j.systemPrompt == "" {
		j.systemPrompt = DefaultSystemPrompt
	}
	if j.userTemplate == "" {
		j.userTemplate = DefaultUserTemplate
	}
	return j
}

func (j *OpenAIJudge) Name() string { return j.model }

// Score returns the parsed reply clamped to [0, 1]. An unparsable reply
// scores 0; transport failures are judge failures.
func (j *OpenAIJudge) Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error) {
	user := strings.NewReplacer("{prompt}", prompt, "{candidate}", candidate).Replace(j.userTemplate)
	reply, err := j.client.ChatCompletion(ctx, j.model, j.systemPrompt, user)
	if err != nil {
		return 0, core.NewJudgeError(j.Name(), err)
	}
	return ParseScore(reply), nil
}

// ParseScore reads the first whitespace-separated token as a number clamped to [0, 1]
func ParseScore(reply string) float64 {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || v != v {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type openAIChatClient struct {
	client *openai.Client
}

func (c *openAIChatClient) ChatCompletion(ctx context.Context, model, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
