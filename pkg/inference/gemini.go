package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	providerGemini = "gemini"

	// DefaultGeminiModel is the model used for replies and vision.
	DefaultGeminiModel = "gemini-2.5-flash"

	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini implements the Provider interface for Google's Gemini API.
// Gemini's REST format differs from OpenAI's so it is spoken directly.
type Gemini struct {
	apiKey string
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultGeminiBaseURL
	cfg.Model = DefaultGeminiModel
	cfg.VisionModel = DefaultGeminiModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}

	return &Gemini{
		apiKey: cfg.APIKey,
		config: cfg,
		http:   cfg.httpClient(),
		logger: cfg.Logger.With("component", "inference.gemini"),
	}, nil
}

// Chat generates a chat completion using Gemini.
func (g *Gemini) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	payload := geminiRequest{
		Contents:         g.convertMessages(req.Messages),
		GenerationConfig: g.generationConfig(req.Temperature, req.MaxTokens),
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	result, err := g.generate(ctx, model, &payload)
	if err != nil {
		return nil, err
	}

	text, finish, err := result.first()
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &ChatResponse{
		Message:      NewAssistantMessage(text),
		FinishReason: finish,
		Model:        model,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

// Vision analyzes an image using Gemini.
func (g *Gemini) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = g.config.VisionModel
	}

	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, geminiPart{
			InlineData: &geminiBlob{
				MIMEType: mimeOrDefault(req.MIMEType),
				Data:     base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}

	payload := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: g.generationConfig(0, req.MaxTokens),
	}

	result, err := g.generate(ctx, model, &payload)
	if err != nil {
		return nil, err
	}

	text, _, err := result.first()
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &VisionResponse{
		Content:   text,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Capabilities returns Gemini's capabilities.
func (g *Gemini) Capabilities() Capabilities {
	return Capabilities{Chat: true, Vision: true}
}

// Health checks API connectivity.
func (g *Gemini) Health(ctx context.Context) error {
	_, err := g.Chat(ctx, &ChatRequest{
		Messages:  []Message{NewUserMessage("test")},
		MaxTokens: 1,
	})
	return err
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

func (g *Gemini) generationConfig(temp float64, maxTokens int) geminiGenConfig {
	if temp == 0 {
		temp = g.config.Temperature
	}
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	return geminiGenConfig{Temperature: temp, MaxOutputTokens: maxTokens}
}

// generate posts a generateContent request and decodes the response.
func (g *Gemini) generate(ctx context.Context, model string, payload *geminiRequest) (*geminiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.config.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.doWithRetry(ctx, httpReq, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.parseError(resp)
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}
	if result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: result.Error.Code,
			Message:    result.Error.Message,
			Provider:   providerGemini,
		}
	}
	return &result, nil
}

// doWithRetry performs the request, retrying on transport errors, 429 and 5xx.
func (g *Gemini) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := g.http.Do(req)
		if err != nil {
			lastErr = WrapError(providerGemini, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			g.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = g.parseError(resp)
			resp.Body.Close()
			g.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// convertMessages maps chat roles onto Gemini's user/model roles.
func (g *Gemini) convertMessages(msgs []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(msgs))
	for _, msg := range msgs {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return contents
}

// parseError reads and parses an error response.
func (g *Gemini) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerGemini,
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// geminiResponse is the Gemini API response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// first joins the text parts of the first candidate.
func (r *geminiResponse) first() (string, string, error) {
	if len(r.Candidates) == 0 {
		return "", "", ErrEmptyResponse
	}
	c := r.Candidates[0]
	var buf bytes.Buffer
	for _, p := range c.Content.Parts {
		buf.WriteString(p.Text)
	}
	text := trimText(buf.String())
	if text == "" {
		return "", c.FinishReason, ErrEmptyResponse
	}
	return text, c.FinishReason, nil
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
