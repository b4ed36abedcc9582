package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FairForge/reclaimer/internal/metrics"
	"github.com/FairForge/reclaimer/internal/retention"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 1024
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

const artifactPrompt = `You review stored report and export files for a storage retention system.
Given one artifact's metadata and usage, reply with a single JSON object:
{"content_type": string, "business_value": integer 1-10, "suggested_retention_days": integer,
 "action": "DELETE" | "ARCHIVE" | "COMPRESS" | "PROTECT", "confidence": number 0-1, "reasoning": string}
Reply with JSON only.`

const summaryPrompt = `You review the result of a storage retention run.
Given the run summary, reply with a single JSON object:
{"overall_recommendation": string, "business_impact": string,
 "estimated_cost_savings": string, "risk_assessment": string}
Reply with JSON only.`

// Config configures an HTTPOracle
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int

	// RatePerSecond and Burst bound the request rate; zero uses defaults.
	RatePerSecond float64
	Burst         int
}

// HTTPOracle implements Oracle against an Anthropic Messages compatible API.
// It never retries; a failed call degrades the caller to rule-based mode.
type HTTPOracle struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewHTTPOracle creates a new oracle client
func NewHTTPOracle(cfg Config, collector *metrics.Collector, logger *zap.Logger) (*HTTPOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("advisory API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	limit := cfg.RatePerSecond
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &HTTPOracle{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		metrics:    collector,
		logger:     logger,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AdviseArtifact asks for an opinion on one artifact
func (o *HTTPOracle) AdviseArtifact(ctx context.Context, brief ArtifactBrief) (*retention.AdvisoryOpinion, error) {
	start := time.Now()
	opinion, err := o.adviseArtifact(ctx, brief)
	o.metrics.RecordOracleCall("artifact", err, time.Since(start))
	return opinion, err
}

func (o *HTTPOracle) adviseArtifact(ctx context.Context, brief ArtifactBrief) (*retention.AdvisoryOpinion, error) {
	payload, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal brief: %w", err)
	}

	content, err := o.complete(ctx, artifactPrompt, string(payload))
	if err != nil {
		return nil, err
	}

	doc := []byte(extractJSON(content))
	if err := validate(opinionValidator, doc); err != nil {
		return nil, fmt.Errorf("invalid opinion: %w", err)
	}

	var opinion retention.AdvisoryOpinion
	if err := json.Unmarshal(doc, &opinion); err != nil {
		return nil, fmt.Errorf("failed to parse opinion: %w", err)
	}
	return &opinion, nil
}

// SummarizeRun asks for batch-level insights on a finished run
func (o *HTTPOracle) SummarizeRun(ctx context.Context, summary RunSummary) (*retention.Insights, error) {
	start := time.Now()
	insights, err := o.summarizeRun(ctx, summary)
	o.metrics.RecordOracleCall("summary", err, time.Since(start))
	return insights, err
}

func (o *HTTPOracle) summarizeRun(ctx context.Context, summary RunSummary) (*retention.Insights, error) {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}

	content, err := o.complete(ctx, summaryPrompt, string(payload))
	if err != nil {
		return nil, err
	}

	doc := []byte(extractJSON(content))
	if err := validate(insightsValidator, doc); err != nil {
		return nil, fmt.Errorf("invalid insights: %w", err)
	}

	var insights retention.Insights
	if err := json.Unmarshal(doc, &insights); err != nil {
		return nil, fmt.Errorf("failed to parse insights: %w", err)
	}
	return &insights, nil
}

// complete sends one system+user exchange and returns the reply text
func (o *HTTPOracle) complete(ctx context.Context, system, user string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	jsonData, err := json.Marshal(anthropicRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: 0.2,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", o.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" || block.Type == "" {
			o.logger.Debug("advisory oracle replied", zap.Int("bytes", len(block.Text)))
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from API")
}

var _ Oracle = (*HTTPOracle)(nil)
