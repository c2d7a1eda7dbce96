package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/httpretry"
)

const openAIChatEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient adapts the OpenAI chat-completions API to LLM.
type OpenAIClient struct {
	apiKey   string
	model    string
	endpoint string
	client   httpretry.HTTPDoer
	sems     *Semaphores
	limiter  *RateLimiter
}

// NewOpenAIClient builds the adapter. Model defaults to gpt-4o-mini.
func NewOpenAIClient(apiKey, model string, client httpretry.HTTPDoer, sems *Semaphores, limiter *RateLimiter) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if client == nil {
		client = httpretry.New(nil, 3)
	}
	return &OpenAIClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIChatEndpoint,
		client:   client,
		sems:     sems,
		limiter:  limiter,
	}
}

// Enabled reports whether the API key is configured.
func (o *OpenAIClient) Enabled() bool { return o.apiKey != "" }

type openAIRequest struct {
	Model          string        `json:"model"`
	Messages       []ChatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete runs one chat completion and returns the assistant text.
func (o *OpenAIClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	return o.complete(ctx, messages, false)
}

// CompleteJSON asks for a JSON object response and unmarshals it into out.
// Models occasionally wrap JSON in markdown fences despite JSON mode, so
// fences are stripped before parsing.
func (o *OpenAIClient) CompleteJSON(ctx context.Context, messages []ChatMessage, out interface{}) error {
	text, err := o.complete(ctx, messages, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripJSONFences(text)), out); err != nil {
		return domain.E(domain.KindPermanent, "llm_bad_json", "LLM response is not the requested JSON shape", err)
	}
	return nil
}

func (o *OpenAIClient) complete(ctx context.Context, messages []ChatMessage, jsonMode bool) (string, error) {
	if !o.Enabled() {
		return "", domain.E(domain.KindConfig, "llm_not_configured", "LLM API key missing", nil)
	}

	if o.sems != nil {
		if err := o.sems.LLM.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer o.sems.LLM.Release(1)
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, "llm"); err != nil {
			return "", err
		}
	}

	reqBody := openAIRequest{Model: o.model, Messages: messages, Temperature: 0.3}
	if jsonMode {
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.E(domain.KindCancelled, "llm_cancelled", "LLM call cancelled", err)
		}
		return "", domain.E(domain.KindTransient, "llm_unreachable", "LLM API unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", domain.E(domain.KindTransient, "llm_read_failed", "reading LLM response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpretry.ClassifyResponse("llm", resp.StatusCode, body)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", domain.E(domain.KindPermanent, "llm_bad_response", "unparseable LLM response", err)
	}
	if parsed.Error != nil {
		return "", domain.E(domain.KindPermanent, "llm_api_error", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.E(domain.KindPermanent, "llm_empty_response", "LLM returned no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

// StripJSONFences removes a ```json ... ``` wrapper when present.
func StripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
