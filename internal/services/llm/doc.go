// Package llm turns media bytes into catalog metadata using a multimodal model.
//
// Two providers are available: Gemini via google/generative-ai-go and any
// OpenAI-compatible chat endpoint via sashabaranov/go-openai. Both send the
// configured prompt with the media attached and expect a JSON object back,
// which DecodeLLMJSON tolerates even when wrapped in code fences or prose.
//
// # Errors
//
// Provider failures are tagged with services.ErrDescriptionService. When the
// provider rejects the media type itself the error matches
// services.ErrUnsupportedMedia so the sync workflow can stop retrying that
// item. Missing credentials surface as services.ErrConfiguration.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx and network timeouts with
// exponential backoff (base 1s, max 10s, up to 3 attempts by default).
// Context cancellation aborts retries immediately. NewPaced adds a
// requests-per-minute limit on top.
package llm
