// Package emotion infers the user's facial emotion from webcam frames.
//
// Frames arrive from the browser as data URLs. The Adapter decodes them and
// hands the image to a Classifier backend: a local ONNX pipeline (YuNet face
// detector plus a FER+ expression network) or a vision-capable language
// model. Every failure collapses to "no result"; the caller simply emits
// nothing for that frame.
package emotion

import (
	"context"
	"errors"
	"strings"
)

// Label is one entry of the emotion vocabulary.
type Label string

const (
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Neutral  Label = "neutral"
	Fear     Label = "fear"
	Surprise Label = "surprise"
	Disgust  Label = "disgust"
)

// Labels lists the vocabulary in a stable order.
var Labels = []Label{Happy, Sad, Angry, Neutral, Fear, Surprise, Disgust}

var aliases = map[string]Label{
	"happy":     Happy,
	"happiness": Happy,
	"joy":       Happy,
	"sad":       Sad,
	"sadness":   Sad,
	"angry":     Angry,
	"anger":     Angry,
	"neutral":   Neutral,
	"calm":      Neutral,
	"fear":      Fear,
	"fearful":   Fear,
	"afraid":    Fear,
	"surprise":  Surprise,
	"surprised": Surprise,
	"disgust":   Disgust,
	"disgusted": Disgust,
	"contempt":  Disgust,
}

// ParseLabel maps a model's word for an emotion onto the vocabulary.
// Surrounding punctuation and case are ignored.
func ParseLabel(s string) (Label, bool) {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), ".,!\"'`*"))
	l, ok := aliases[s]
	return l, ok
}

// Valid reports whether l is in the vocabulary.
func (l Label) Valid() bool {
	for _, v := range Labels {
		if l == v {
			return true
		}
	}
	return false
}

// Result is a single classification.
type Result struct {
	Label      Label
	Confidence float64
}

// Classifier labels a decoded image (JPEG or PNG bytes).
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Result, error)
	Close() error
}

var (
	// ErrNoFace is returned when the frame contains no detectable face.
	ErrNoFace = errors.New("emotion: no face detected")

	// ErrMalformedFrame is returned for frames that are not valid data URLs.
	ErrMalformedFrame = errors.New("emotion: malformed frame")

	// ErrUnknownLabel is returned when a backend answers outside the vocabulary.
	ErrUnknownLabel = errors.New("emotion: unknown label")
)
