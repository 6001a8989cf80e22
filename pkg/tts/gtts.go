package tts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	providerGoogle    = "google"
	googleTTSBaseURL  = "https://translate.google.com"
	googleChunkLength = 100
	googleUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// GoogleTranslate implements Provider against the keyless voice used by the
// Google Translate web page. Text longer than 100 characters is split at
// word boundaries and the MP3 segments are concatenated.
type GoogleTranslate struct {
	config  *Config
	baseURL string
	req     *requester
}

// NewGoogleTranslate creates the default keyless provider.
func NewGoogleTranslate(opts ...Option) *GoogleTranslate {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleTTSBaseURL
	}

	g := &GoogleTranslate{config: cfg, baseURL: strings.TrimRight(baseURL, "/")}
	g.req = &requester{
		provider: providerGoogle,
		client:   cfg.httpClient(),
		config:   cfg,
		logger:   cfg.Logger.With("component", "tts.google"),
		parse:    parsePlainError(providerGoogle),
	}
	return g
}

// Synthesize fetches each chunk in order and joins the MP3 frames.
func (g *GoogleTranslate) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	chunks := splitText(text, googleChunkLength)
	if len(chunks) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}

	var audio []byte
	for i, chunk := range chunks {
		part, err := g.fetch(ctx, chunk, i, len(chunks))
		if err != nil {
			return nil, err
		}
		audio = append(audio, part...)
	}

	latency := time.Since(start).Milliseconds()
	g.req.logger.Debug("synthesized audio",
		"chars", len(text),
		"chunks", len(chunks),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Encoding:  EncodingMP3,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (g *GoogleTranslate) fetch(ctx context.Context, chunk string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.config.Language)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", googleUserAgent)
	req.Header.Set("Referer", g.baseURL+"/")

	resp, err := g.req.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return g.req.readAudio(resp)
}

// Health synthesizes a single word.
func (g *GoogleTranslate) Health(ctx context.Context) error {
	_, err := g.Synthesize(ctx, "ok")
	return err
}

// Close releases resources.
func (g *GoogleTranslate) Close() error {
	g.req.client.CloseIdleConnections()
	return nil
}

// splitText breaks text into chunks of at most max runes, preferring
// sentence punctuation, then whitespace, then a hard cut.
func splitText(text string, max int) []string {
	text = strings.Join(strings.Fields(text), " ")
	var chunks []string

	for text != "" {
		runes := []rune(text)
		if len(runes) <= max {
			chunks = append(chunks, text)
			break
		}

		cut := -1
		for i := max - 1; i > 0; i-- {
			if strings.ContainsRune(".!?;:,", runes[i]) {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			for i := max; i > 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut < 0 {
			cut = max
		}

		if head := strings.TrimSpace(string(runes[:cut])); head != "" {
			chunks = append(chunks, head)
		}
		text = strings.TrimSpace(string(runes[cut:]))
	}

	return chunks
}

// parsePlainError builds an APIError from a non-JSON error body.
func parsePlainError(provider string) func(*http.Response) error {
	return func(resp *http.Response) error {
		buf := make([]byte, 512)
		n, _ := resp.Body.Read(buf)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(buf[:n])),
			Provider:   provider,
		}
	}
}

// Verify GoogleTranslate implements Provider at compile time.
var _ Provider = (*GoogleTranslate)(nil)
