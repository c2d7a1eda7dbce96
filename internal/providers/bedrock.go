package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// bedrockInvoker is the slice of bedrockruntime.Client the adapter needs;
// tests substitute a fake.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient adapts AWS Bedrock (Anthropic message format) to LLM. All
// traffic stays inside AWS, useful for tenants that cannot ship prospect
// data to an external LLM API.
type BedrockClient struct {
	client  bedrockInvoker
	modelID string
	sems    *Semaphores
	limiter *RateLimiter
}

// NewBedrockClient loads the default AWS config for region and builds the
// adapter. modelID defaults to Claude 3 Haiku.
func NewBedrockClient(ctx context.Context, region, modelID string, sems *Semaphores, limiter *RateLimiter) (*BedrockClient, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, domain.E(domain.KindConfig, "bedrock_config_failed", "loading AWS config", err)
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	logger.Info("bedrock LLM initialized", "model", modelID, "region", region)
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
		sems:    sems,
		limiter: limiter,
	}, nil
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete runs one completion and returns the assistant text.
func (b *BedrockClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	if b.sems != nil {
		if err := b.sems.LLM.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer b.sems.LLM.Release(1)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, "llm"); err != nil {
			return "", err
		}
	}

	var system string
	bedrockMsgs := make([]bedrockMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msg := bedrockMessage{Role: m.Role}
		msg.Content = append(msg.Content, struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "text", Text: m.Content})
		bedrockMsgs = append(bedrockMsgs, msg)
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4000,
		System:           system,
		Messages:         bedrockMsgs,
		Temperature:      0.3,
	})
	if err != nil {
		return "", err
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", domain.E(domain.KindCancelled, "llm_cancelled", "LLM call cancelled", err)
		}
		if strings.Contains(err.Error(), "ThrottlingException") {
			return "", domain.E(domain.KindTransient, "llm_throttled", "bedrock throttled", err)
		}
		return "", domain.E(domain.KindTransient, "llm_unreachable", "bedrock invoke failed", err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", domain.E(domain.KindPermanent, "llm_bad_response", "unparseable bedrock response", err)
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", domain.E(domain.KindPermanent, "llm_empty_response", "bedrock returned no text", nil)
	}
	return sb.String(), nil
}

// CompleteJSON completes with a JSON-only instruction and unmarshals the
// result into out.
func (b *BedrockClient) CompleteJSON(ctx context.Context, messages []ChatMessage, out interface{}) error {
	withHint := make([]ChatMessage, len(messages), len(messages)+1)
	copy(withHint, messages)
	withHint = append(withHint, ChatMessage{
		Role:    "user",
		Content: "Respond with a single JSON object only. No prose, no markdown fences.",
	})

	text, err := b.Complete(ctx, withHint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripJSONFences(text)), out); err != nil {
		return domain.E(domain.KindPermanent, "llm_bad_json", "LLM response is not the requested JSON shape", err)
	}
	return nil
}
