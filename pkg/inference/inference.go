// Package inference provides a unified interface for the language models Kai
// talks to.
//
// The package abstracts chat completions and single-image vision prompts
// behind one Provider interface so the reply generator and the vision-based
// emotion classifier can switch between Gemini, OpenAI, a fallback chain or a
// test mock without changing caller code.
//
// Example usage:
//
//	gem, _ := inference.NewGemini(
//	    inference.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    inference.WithTemperature(0.7),
//	)
//	defer gem.Close()
//
//	resp, _ := gem.Chat(ctx, &inference.ChatRequest{
//	    System:   "You are Kai.",
//	    Messages: []inference.Message{inference.NewUserMessage("Hello!")},
//	})
package inference

import "context"

// Provider is the unified inference interface for chat and vision.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Vision answers a text prompt about a single image.
	Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// Capabilities returns what features this provider supports.
	Capabilities() Capabilities

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Capabilities describes what features a provider supports.
type Capabilities struct {
	Chat   bool // Supports chat completions
	Vision bool // Supports image input
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// System is the persona instruction. Sent out of band where the API allows.
	System string

	// Messages is the conversation, oldest first.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0). Zero uses the provider default.
	Temperature float64
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Text returns the trimmed reply text.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	return trimText(r.Message.Content)
}

// VisionRequest for image analysis.
type VisionRequest struct {
	// Image is the encoded image (JPEG or PNG bytes).
	Image []byte

	// MIMEType of Image. Defaults to image/jpeg.
	MIMEType string

	// Prompt describing what to analyze or ask about the image.
	Prompt string

	// Model overrides the default vision model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int
}

// VisionResponse from image analysis.
type VisionResponse struct {
	// Content is the natural language response.
	Content string

	// Model used for analysis.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

func mimeOrDefault(m string) string {
	if m == "" {
		return "image/jpeg"
	}
	return m
}
