// File: internal/adapt/gemini.go
// Model-backed proposer using the Gemini API over plain HTTP. Used when the
// rule table is not enough, e.g. after a redesign that renamed everything.
package adapt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

const proposerSystemPrompt = `You are a web UI locator repair assistant. You are given the logical name of a UI element, the locator strategies that no longer match it, and the current page HTML. Identify the element on the page and respond ONLY with a JSON array of alternative locators, ordered from most to least reliable. Each entry has the shape {"kind": "css"|"xpath"|"text", "expression": "...", "prior": 0.0-1.0}. The prior is your confidence that the locator uniquely matches the intended element. Propose at most 4 locators. Do not propose any of the failed strategies again.`

// GeminiProposer implements schemas.ProposalProvider against the Gemini API.
type GeminiProposer struct {
	cfg        config.GeminiConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ schemas.ProposalProvider = (*GeminiProposer)(nil)

// -- Gemini API request/response structures (internal to this file) --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *struct {
		Parts []geminiPart `json:"parts"`
	} `json:"system_instruction,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// proposalEntry is the wire shape the model is asked to produce.
type proposalEntry struct {
	Kind       string  `json:"kind"`
	Expression string  `json:"expression"`
	Prior      float64 `json:"prior"`
}

func NewGeminiProposer(cfg config.GeminiConfig, logger *zap.Logger) (*GeminiProposer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}
	return &GeminiProposer{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger.Named("adapt.gemini"),
	}, nil
}

func (g *GeminiProposer) ProposeAlternatives(ctx context.Context, target string, failed []schemas.Candidate, markup string) ([]schemas.Candidate, error) {
	response, err := g.generate(ctx, g.buildPrompt(target, failed, markup))
	if err != nil {
		return nil, err
	}
	entries, err := ParseJSONResponse[[]proposalEntry](response)
	if err != nil {
		return nil, err
	}

	proposed := make([]schemas.Candidate, 0, len(*entries))
	for _, entry := range *entries {
		kind := schemas.LocatorKind(entry.Kind)
		if kind != schemas.LocatorCSS && kind != schemas.LocatorXPath && kind != schemas.LocatorText {
			g.logger.Warn("Model proposed unknown locator kind", zap.String("kind", entry.Kind))
			continue
		}
		if entry.Expression == "" {
			continue
		}
		prior := entry.Prior
		if prior <= 0 || prior > 1 {
			prior = 0.5
		}
		proposed = append(proposed, schemas.Candidate{
			Strategy: schemas.LocatorStrategy{Kind: kind, Expression: entry.Expression},
			Prior:    prior,
		})
	}
	return proposed, nil
}

func (g *GeminiProposer) buildPrompt(target string, failed []schemas.Candidate, markup string) string {
	var sb bytes.Buffer
	fmt.Fprintf(&sb, "Logical element name: %s\n\nFailed locator strategies:\n", target)
	for _, c := range failed {
		fmt.Fprintf(&sb, "- %s (prior %.2f)\n", c.Strategy, c.Prior)
	}
	limit := g.cfg.MarkupLimit
	if limit > 0 && len(markup) > limit {
		markup = markup[:limit]
	}
	fmt.Fprintf(&sb, "\nCurrent page HTML:\n%s\n", markup)
	return sb.String()
}

// generate sends the prompt with retries. Rate limits and server errors are
// retried; everything else is permanent.
func (g *GeminiProposer) generate(ctx context.Context, prompt string) (string, error) {
	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		SystemInstruction: &struct {
			Parts []geminiPart `json:"parts"`
		}{Parts: []geminiPart{{Text: proposerSystemPrompt}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.Temperature,
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.cfg.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.cfg.APIKey)

		start := time.Now()
		resp, err := g.httpClient.Do(httpReq)
		if err != nil {
			g.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return g.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		g.logger.Debug("Model proposal round complete", zap.Duration("duration", time.Since(start)))
		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (g *GeminiProposer) handleAPIError(statusCode int, body []byte) error {
	g.logger.Error("Gemini API returned error status",
		zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err
	default:
		return backoff.Permanent(err)
	}
}
