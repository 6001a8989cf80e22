package emotion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teslashibe/go-kai/pkg/diag"
)

// Adapter turns raw frame payloads into at most one label.
type Adapter struct {
	classifier    Classifier
	minConfidence float64
	counters      *diag.Counters
	logger        *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMinConfidence drops results below c.
func WithMinConfidence(c float64) AdapterOption {
	return func(a *Adapter) { a.minConfidence = c }
}

// WithCounters records classifier failures.
func WithCounters(c *diag.Counters) AdapterOption {
	return func(a *Adapter) { a.counters = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter wraps a classifier. A nil classifier never produces a label.
func NewAdapter(c Classifier, opts ...AdapterOption) *Adapter {
	a := &Adapter{classifier: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "emotion")
	return a
}

// Classify decodes dataURL and returns the most probable label.
// Malformed input, no face, low confidence and backend errors all yield
// ok == false.
func (a *Adapter) Classify(ctx context.Context, dataURL string) (Label, bool) {
	if a == nil || a.classifier == nil {
		return "", false
	}

	img, _, err := DecodeDataURL(dataURL)
	if err != nil {
		a.logger.Debug("dropping frame", "error", err)
		return "", false
	}

	res, err := a.classifier.Classify(ctx, img)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoFace):
		return "", false
	case errors.Is(err, context.Canceled):
		return "", false
	default:
		a.counters.Error(diag.KindClassifier, classifierReason(err))
		a.logger.Warn("classification failed", "error", err)
		return "", false
	}

	if !res.Label.Valid() {
		return "", false
	}
	if res.Confidence > 0 && res.Confidence < a.minConfidence {
		a.logger.Debug("low confidence", "label", res.Label, "confidence", res.Confidence)
		return "", false
	}
	return res.Label, true
}

// Close releases the classifier.
func (a *Adapter) Close() error {
	if a == nil || a.classifier == nil {
		return nil
	}
	return a.classifier.Close()
}

func classifierReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownLabel):
		return "unknown_label"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}
