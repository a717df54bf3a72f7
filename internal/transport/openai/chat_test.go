package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/partsearch/internal/domain"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
	Messages  []struct {
		Role         string            `json:"role"`
		Content      string            `json:"content"`
		MultiContent []json.RawMessage `json:"-"`
	} `json:"messages"`
}

func chatCompletionJSON(content string, tokens int) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion","choices":[{"index":0,`+
		`"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],`+
		`"usage":{"prompt_tokens":%d,"completion_tokens":0,"total_tokens":%d}}`, content, tokens, tokens)
}

func TestChatModel_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-3.5-turbo" || req.MaxTokens != 200 {
			t.Errorf("unexpected model/max_tokens %s/%d", req.Model, req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionJSON("  A short summary.  ", 42)))
	}))
	defer srv.Close()

	m := NewSummaryModel(testConfig(srv.URL), "gpt-3.5-turbo", 200)
	res, err := m.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "summarize"},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if res.Text != "A short summary." || res.TotalTokens != 42 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChatModel_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewChatModel(testConfig(srv.URL), "m", 10, "").Complete(context.Background(), nil)
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
}

func streamServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"choices\":"+
				"[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"choices\":[],"+
			"\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":3,\"total_tokens\":8}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatModel_Stream(t *testing.T) {
	srv := streamServer(t, []string{"The ", "RA4M1 ", "fits."})

	var got []string
	res, err := NewChatModel(testConfig(srv.URL), "gpt-4-turbo-preview", 100, "").Stream(
		context.Background(),
		[]domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}},
		func(chunk string) error {
			got = append(got, chunk)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if strings.Join(got, "") != "The RA4M1 fits." || len(got) != 3 {
		t.Errorf("unexpected chunks %q", got)
	}
	if res.Text != "The RA4M1 fits." || res.TotalTokens != 8 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChatModel_Stream_SinkError(t *testing.T) {
	srv := streamServer(t, []string{"a", "b"})
	sinkErr := errors.New("client gone")

	res, err := NewChatModel(testConfig(srv.URL), "m", 10, "").Stream(
		context.Background(), nil,
		func(string) error { return sinkErr },
	)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if res.Text != "a" {
		t.Errorf("expected partial text %q, got %q", "a", res.Text)
	}
}

func TestCaptioner_SendsImagePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		body, _ := json.Marshal(raw)
		if !strings.Contains(string(body), `"image_url"`) || !strings.Contains(string(body), "data:image/jpeg;base64,") {
			t.Errorf("expected an image_url part with a jpeg data URL, got %s", body)
		}
		if !strings.Contains(string(body), "block diagram") {
			t.Errorf("expected the diagram prompt, got %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionJSON("Motor control loop with MCU and inverter.", 120)))
	}))
	defer srv.Close()

	c := NewCaptioner(testConfig(srv.URL), "gpt-4o-mini", 150)
	res, err := c.Caption(context.Background(), domain.Image{Data: []byte{0xff, 0xd8}, ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Caption failed: %v", err)
	}
	if res.Text != "Motor control loop with MCU and inverter." || res.TotalTokens != 120 {
		t.Errorf("unexpected caption %+v", res)
	}
}

func TestCaptioner_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewCaptioner(testConfig(srv.URL), "gpt-4o-mini", 150).
		Caption(context.Background(), domain.Image{Data: []byte{1}})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected ErrProviderError, got %v", err)
	}
}
