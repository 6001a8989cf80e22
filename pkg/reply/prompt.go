package reply

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-kai/pkg/emotion"
)

// Persona is the system instruction for every chat reply.
const Persona = `You are Kai, a compassionate, serene and wise mental wellness companion on a video call.
Keep every reply between one and three short sentences.
Be warm and non-clinical, avoid jargon, and gently encourage the user to share more.
Never diagnose and never mention that you are a language model.`

// Fixed replies for the "always answer" contract.
const (
	FallbackOffline = "Sorry, the AI is offline right now. I'm listening, though."
	FallbackError   = "I'm having a technical issue, but I still want to hear what's on your mind."
)

// EmotionPrompt asks for a reaction to the user's visible emotion.
func EmotionPrompt(label emotion.Label) string {
	return fmt.Sprintf(
		"The user is currently displaying the primary emotion: '%s'. "+
			"Your response must be extremely brief (max 2 sentences), empathetic, and encourage the user to share more. "+
			"Do not use complex jargon. Adopt a calm and gentle tone.",
		strings.ToUpper(string(label)),
	)
}

var canned = map[emotion.Label]string{
	emotion.Happy:    "I love seeing you smile. What's bringing you joy right now?",
	emotion.Sad:      "You seem a little down. I'm here, and I'd like to hear what's on your mind.",
	emotion.Angry:    "It looks like something is frustrating you. Do you want to talk it through?",
	emotion.Fear:     "You seem worried. Take a slow breath with me, and tell me what's going on.",
	emotion.Surprise: "Oh, something caught you off guard. What happened?",
	emotion.Disgust:  "Something doesn't sit right with you. Would you like to share it?",
}

// Canned returns a fixed reaction for label. Neutral has none.
func Canned(label emotion.Label) (string, bool) {
	s, ok := canned[label]
	return s, ok
}
