package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teslashibe/go-jarvis/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI is a Provider backed by the official openai-go SDK.
type OpenAI struct {
	client openai.Client
	cfg    *Config
	logger *slog.Logger
}

// NewOpenAI creates an SDK-backed provider with SDK retries turned off.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		cfg:    cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Send requests one completion for messages.
func (o *OpenAI) Send(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.cfg.Model),
		Messages: sdkMessages(messages),
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}
	if o.cfg.Temperature > 0 {
		params.Temperature = openai.Float(o.cfg.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", sdkError(err)
	}
	if len(resp.Choices) == 0 {
		return "", WrapError(providerOpenAI, ErrNoChoices)
	}

	o.logger.Debug("completion received",
		"model", resp.Model,
		"finish", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Health lists models to check connectivity and credentials.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return sdkError(err)
	}
	return nil
}

// Close is a no-op.
func (o *OpenAI) Close() error { return nil }

func sdkMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}

// sdkError maps SDK failures onto APIError so both providers classify alike.
func sdkError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, fmt.Errorf("chat completion: %w", err))
}

var _ Provider = (*OpenAI)(nil)
