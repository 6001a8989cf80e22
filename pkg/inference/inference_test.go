package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestGeminiChat(t *testing.T) {
	var got geminiRequest
	var gotPath, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  I hear you. "},{"text":"Tell me more."}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	g, err := NewGemini(
		WithAPIKey("k"),
		WithBaseURL(srv.URL),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}

	resp, err := g.Chat(context.Background(), &ChatRequest{
		System: "be kind",
		Messages: []Message{
			NewUserMessage("hi"),
			NewAssistantMessage("hello"),
			NewUserMessage("I'm tired"),
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "k" {
		t.Errorf("api key header = %q", gotKey)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be kind" {
		t.Errorf("system instruction = %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[2].Role != "user" {
		t.Errorf("contents = %+v", got.Contents)
	}
	if got.GenerationConfig.Temperature != 0.7 || got.GenerationConfig.MaxOutputTokens != 200 {
		t.Errorf("generation config = %+v", got.GenerationConfig)
	}
	if resp.Text() != "I hear you. Tell me more." {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
}

func TestGeminiVisionInlineData(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"sad"}]}}]}`)
	}))
	defer srv.Close()

	g, _ := NewGemini(WithAPIKey("k"), WithBaseURL(srv.URL), WithLogger(quietLogger()))
	resp, err := g.Vision(context.Background(), &VisionRequest{
		Image:    []byte("png-bytes"),
		MIMEType: "image/png",
		Prompt:   "what emotion?",
	})
	if err != nil {
		t.Fatalf("Vision: %v", err)
	}
	if resp.Content != "sad" {
		t.Errorf("Content = %q", resp.Content)
	}
	parts := got.Contents[0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[1].InlineData.MIMEType != "image/png" || parts[1].InlineData.Data != "cG5nLWJ5dGVz" {
		t.Errorf("inline data = %+v", parts[1].InlineData)
	}
}

func TestGeminiRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":{"message":"overloaded","status":"UNAVAILABLE"}}`)
			return
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	defer srv.Close()

	g, _ := NewGemini(
		WithAPIKey("k"),
		WithBaseURL(srv.URL),
		WithRetry(2, time.Millisecond),
		WithLogger(quietLogger()),
	)
	resp, err := g.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("x")}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text() != "ok" || calls.Load() != 2 {
		t.Errorf("text = %q, calls = %d", resp.Text(), calls.Load())
	}
}

func TestGeminiQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	g, _ := NewGemini(
		WithAPIKey("k"),
		WithBaseURL(srv.URL),
		WithRetry(0, 0),
		WithLogger(quietLogger()),
	)
	_, err := g.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("x")}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if !apiErr.IsRateLimited() || apiErr.Code != "RESOURCE_EXHAUSTED" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if Kind(err) != "quota" {
		t.Errorf("Kind = %q, want quota", Kind(err))
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	g, _ := NewGemini(WithAPIKey("k"), WithBaseURL(srv.URL), WithLogger(quietLogger()))
	_, err := g.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("x")}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestOpenAIChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" Breathe with me. "}}]}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	resp, err := o.Chat(context.Background(), &ChatRequest{
		System:   "be kind",
		Messages: []Message{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text() != "Breathe with me." {
		t.Errorf("Text() = %q", resp.Text())
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
}

func TestOpenAIErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	o, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL), WithRetry(0, 0), WithLogger(quietLogger()))
	_, err := o.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if Kind(err) != "auth" {
		t.Errorf("Kind = %q, want auth (err %v)", Kind(err), err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&APIError{StatusCode: 429}, "quota"},
		{&APIError{StatusCode: 403}, "auth"},
		{WrapError("gemini", &APIError{StatusCode: 502}), "server"},
		{WrapError("gemini", context.DeadlineExceeded), "timeout"},
		{WrapError("gemini", ErrEmptyResponse), "empty"},
		{ErrNoAPIKey, "unavailable"},
		{&ChainError{Errors: []error{errors.New("x"), &APIError{StatusCode: 429}}}, "quota"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
