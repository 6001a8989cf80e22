package emotion

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeDataURL extracts the image bytes from "data:<mime>;base64,<payload>".
// Only the part after the first comma is decoded, so a bare
// "<prefix>,<base64>" is accepted as well.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma", ErrMalformedFrame)
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	}

	mime := "image/jpeg"
	if m, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); strings.HasPrefix(m, "image/") {
		mime = m
	}
	return data, mime, nil
}
