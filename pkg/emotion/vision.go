package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/teslashibe/go-kai/pkg/inference"
)

const visionPrompt = "Look at the person's face in this webcam frame. " +
	"Answer with exactly one word from this list: happy, sad, angry, neutral, fear, surprise, disgust. " +
	"If no face is visible answer none."

// Vision asks a vision-capable language model for the label.
type Vision struct {
	provider inference.Provider
	model    string
}

// NewVision creates a classifier backed by provider. model may be empty.
func NewVision(provider inference.Provider, model string) *Vision {
	return &Vision{provider: provider, model: model}
}

// Classify sends the frame with a one-word prompt.
func (v *Vision) Classify(ctx context.Context, img []byte) (Result, error) {
	resp, err := v.provider.Vision(ctx, &inference.VisionRequest{
		Image:     img,
		MIMEType:  sniffImageType(img),
		Prompt:    visionPrompt,
		Model:     v.model,
		MaxTokens: 5,
	})
	if err != nil {
		return Result{}, err
	}

	words := strings.Fields(resp.Content)
	if len(words) == 0 {
		return Result{}, fmt.Errorf("%w: empty answer", ErrUnknownLabel)
	}
	if strings.EqualFold(strings.Trim(words[0], ".,!"), "none") {
		return Result{}, ErrNoFace
	}
	label, ok := ParseLabel(words[0])
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownLabel, resp.Content)
	}
	return Result{Label: label}, nil
}

// Close releases the provider.
func (v *Vision) Close() error {
	return v.provider.Close()
}

func sniffImageType(b []byte) string {
	if len(b) >= 8 && string(b[1:4]) == "PNG" {
		return "image/png"
	}
	return "image/jpeg"
}

// Verify Vision implements Classifier at compile time.
var _ Classifier = (*Vision)(nil)
