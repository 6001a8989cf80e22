package inference

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	providerOpenAI = "openai"

	// DefaultOpenAIModel is the chat and vision model used when none is set.
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI implements Provider on top of the official OpenAI SDK.
type OpenAI struct {
	client openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = DefaultOpenAIModel
	cfg.VisionModel = DefaultOpenAIModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerOpenAI, ErrNoAPIKey)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.httpClient()),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.openai"),
	}, nil
}

// Chat generates a chat completion.
func (o *OpenAI) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            msgs,
		Model:               openai.ChatModel(model),
		Temperature:         openai.Float(temp),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return nil, o.wrap(err)
	}
	if len(resp.Choices) == 0 || trimText(resp.Choices[0].Message.Content) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	return &ChatResponse{
		Message:      NewAssistantMessage(trimText(resp.Choices[0].Message.Content)),
		FinishReason: resp.Choices[0].FinishReason,
		Model:        resp.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// Vision sends the image inline as a data URL.
func (o *OpenAI) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.config.VisionModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}

	dataURL := "data:" + mimeOrDefault(req.MIMEType) + ";base64," +
		base64.StdEncoding.EncodeToString(req.Image)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Model:               openai.ChatModel(model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return nil, o.wrap(err)
	}
	if len(resp.Choices) == 0 || trimText(resp.Choices[0].Message.Content) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	return &VisionResponse{
		Content:   trimText(resp.Choices[0].Message.Content),
		Model:     resp.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Capabilities returns OpenAI's capabilities.
func (o *OpenAI) Capabilities() Capabilities {
	return Capabilities{Chat: true, Vision: true}
}

// Health lists models, which only needs a valid key.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return o.wrap(err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (o *OpenAI) Close() error {
	return nil
}

// wrap converts SDK errors into APIError so callers can classify them.
func (o *OpenAI) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	o.logger.Debug("request failed", "error", err)
	return WrapError(providerOpenAI, err)
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
