package tts

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// requester is the HTTP plumbing shared by the remote providers.
type requester struct {
	provider string
	client   *http.Client
	config   *Config
	logger   *slog.Logger
	parse    func(*http.Response) error
}

// do sends req, retrying transport errors, 429 and 5xx with linear backoff.
// body is replayed on each attempt.
func (r *requester) do(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
			if body != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = WrapError(r.provider, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = r.parse(resp)
			resp.Body.Close()
			r.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// readAudio drains a successful response, rejecting empty bodies.
func (r *requester) readAudio(resp *http.Response) ([]byte, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, r.parse(resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(r.provider, err)
	}
	if len(audio) == 0 {
		return nil, WrapError(r.provider, ErrEmptyAudio)
	}
	return audio, nil
}
