package infrastructure

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"krishibondhu/internal/entities"
)

const (
	completionMaxTokens   = 1000
	completionTemperature = 0.7

	sdkBodyReadError = "error reading response body"
)

// OpenRouterConfig configures the completion client.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string // Sent as HTTP-Referer
	Title   string // Sent as X-Title
	Timeout time.Duration
}

// OpenRouterClient implements interfaces.CompletionClient against OpenRouter.
// OpenRouter is OpenAI-compatible, so the OpenAI SDK is used with a custom base URL.
type OpenRouterClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHeader("HTTP-Referer", cfg.Referer),
		option.WithHeader("X-Title", cfg.Title),
		option.WithMaxRetries(0), // one attempt per advisory call
	)
	return &OpenRouterClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

func (c *OpenRouterClient) DefaultModel() string {
	return c.model
}

// Complete sends messages in order and returns the first choice's content.
func (c *OpenRouterClient) Complete(ctx context.Context, messages []entities.ChatMessage, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var httpResp *http.Response
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   openai.Int(completionMaxTokens),
		Temperature: openai.Float(completionTemperature),
	}, option.WithResponseInto(&httpResp))
	if err != nil {
		return "", classifyCompletionError(ctx, err, httpResp)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.Wrap(entities.ErrMalformedResponse, "no response choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []entities.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case entities.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case entities.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classifyCompletionError marks err as a remote rejection (non-2xx status), a malformed
// response (2xx with a body that could not be decoded) or a transport failure.
func classifyCompletionError(ctx context.Context, err error, resp *http.Response) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return errors.Mark(errors.Wrapf(err, "completion endpoint returned status %d", apiErr.StatusCode), entities.ErrRemoteRejected)
	}
	if resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && !isTransportError(ctx, err) {
		return errors.Mark(errors.Wrapf(err, "undecodable completion body (status %d)", resp.StatusCode), entities.ErrMalformedResponse)
	}
	return errors.Mark(errors.Wrap(err, "calling completion endpoint"), entities.ErrTransport)
}

// isTransportError reports failures to read the body, as opposed to failures to decode it.
// A truncated body that was read in full fails in the decoder, not here.
func isTransportError(ctx context.Context, err error) bool {
	var netErr net.Error
	return ctx.Err() != nil ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &netErr) ||
		strings.Contains(err.Error(), sdkBodyReadError)
}
