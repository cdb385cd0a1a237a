package llm

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"memecat/internal/services"
)

func TestResponseTextJoinsParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("  ")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"description":`), genai.Text(`"x"}`)}}},
		},
	}
	if got := responseText(resp); got != `{"description":"x"}` {
		t.Fatalf("unexpected text %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestClassifyGoogleErrors(t *testing.T) {
	unsupported := &googleapi.Error{Code: 400, Message: "Unsupported MIME type: image/x-icon"}
	if err := classifyProviderError("gemini", "a.ico", unsupported); !errors.Is(err, services.ErrUnsupportedMedia) {
		t.Fatalf("expected unsupported media, got %v", err)
	}
	if !errors.Is(services.ErrUnsupportedMedia, services.ErrDescriptionService) {
		t.Fatal("unsupported media must also match the description service marker")
	}
	quota := &googleapi.Error{Code: 429, Message: "quota"}
	if err := classifyProviderError("gemini", "a.png", quota); !errors.Is(err, services.ErrDescriptionService) || errors.Is(err, services.ErrUnsupportedMedia) {
		t.Fatalf("expected description service error, got %v", err)
	}
	p := newRetryPolicy(nil)
	if _, retry := p.retryDelay(t.Context(), quota, 1, 3); !retry {
		t.Fatal("expected 429 to be retried")
	}
	if _, retry := p.retryDelay(t.Context(), unsupported, 1, 3); retry {
		t.Fatal("expected 400 to be permanent")
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	p := newRetryPolicy([]Option{WithRetryBackoff(4, 10)})
	for attempt, want := range map[int]int64{1: 4, 2: 8, 3: 10, 6: 10} {
		if got := p.backoffDelay(attempt); int64(got) != want {
			t.Fatalf("attempt %d: got %d want %d", attempt, got, want)
		}
	}
}
