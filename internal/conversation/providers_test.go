package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"media-forensics-service/internal/models"
)

var history = []models.Turn{
	{Speaker: models.SpeakerUser, Text: "is this fake?"},
	{Speaker: models.SpeakerAssistant, Text: "probably"},
	{Speaker: models.SpeakerUser, Text: "why?"},
}

func TestGeminiReply(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-pro:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Because "},{"text":"artifacts."}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	provider := NewGeminiProvider(GeminiConfig{BaseURL: server.URL, APIKey: "key"}, zap.NewNop())
	reply, err := provider.Reply(context.Background(), history)
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if reply != "Because artifacts." {
		t.Errorf("unexpected reply %q", reply)
	}

	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[2].Role != "user" {
		t.Errorf("unexpected contents: %+v", got.Contents)
	}
	if got.GenerationConfig.TopK != 40 || got.GenerationConfig.MaxOutputTokens != 1024 {
		t.Errorf("unexpected generation config: %+v", got.GenerationConfig)
	}
	if len(got.SafetySettings) != 4 {
		t.Errorf("expected 4 safety settings, got %d", len(got.SafetySettings))
	}
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "http error", status: http.StatusForbidden, body: `{"error":{"code":403,"message":"key invalid"}}`, want: models.ErrProvider},
		{name: "blocked prompt", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, want: models.ErrProvider},
		{name: "safety finish", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, want: models.ErrProvider},
		{name: "malformed", status: http.StatusOK, body: `not json`, want: models.ErrProvider},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, want: models.ErrProvider},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer server.Close()

			provider := NewGeminiProvider(GeminiConfig{BaseURL: server.URL, APIKey: "key"}, zap.NewNop())
			if _, err := provider.Reply(context.Background(), history); !errors.Is(err, test.want) {
				t.Errorf("expected %v, got %v", test.want, err)
			}
		})
	}
}

func TestGeminiNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	provider := NewGeminiProvider(GeminiConfig{BaseURL: server.URL}, zap.NewNop())
	if _, err := provider.Reply(context.Background(), history); !errors.Is(err, models.ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestOpenAIReply(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
		err    error
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"id":"1","object":"chat.completion","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"It looks real."},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`,
			want:   "It looks real.",
		},
		{
			name:   "content filter",
			status: http.StatusOK,
			body:   `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`,
			err:    models.ErrProvider,
		},
		{
			name:   "api error",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			err:    models.ErrProvider,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got struct {
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/chat/completions" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(test.status)
				w.Write([]byte(test.body))
			}))
			defer server.Close()

			provider := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL + "/v1", APIKey: "key"}, zap.NewNop())
			reply, err := provider.Reply(context.Background(), history)
			if test.err != nil {
				if !errors.Is(err, test.err) {
					t.Errorf("expected %v, got %v", test.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reply failed: %v", err)
			}
			if reply != test.want {
				t.Errorf("expected %q, got %q", test.want, reply)
			}
			if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" {
				t.Errorf("unexpected messages: %+v", got.Messages)
			}
		})
	}
}
