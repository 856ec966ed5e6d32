// Package llm wraps the OpenAI chat completions API behind the two analysis
// calls the pipeline needs: metrics extraction and summary generation.
//
// Both calls can fail two ways, and callers need to tell them apart:
// transport/API failures, and responses that arrive but violate the expected
// schema (ErrSchemaViolation). Validation runs here, before anything reaches
// persistence.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSchemaViolation marks a response that parsed as JSON but does not match
// the required analysis schema (e.g. aspects arriving as a list).
var ErrSchemaViolation = errors.New("llm response violates analysis schema")

// sampleSize bounds how many review texts are sent to the model per stage
const sampleSize = 50

// Metrics is the structured stage-1 output
type Metrics struct {
	Sentiment map[string]float64     `json:"sentiment"`
	Aspects   map[string]interface{} `json:"aspects"`
	Keywords  []string               `json:"keywords"`
	Issues    []string               `json:"issues"`
	Trend     map[string]float64     `json:"trend"`
}

// Summary is the narrative stage-2 output
type Summary struct {
	Summary     string                 `json:"summary"`
	Insights    map[string][]string    `json:"insights"`
	EvidenceIDs []string               `json:"evidence_ids"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// Analyzer is the port the analysis service depends on
type Analyzer interface {
	ExtractMetrics(ctx context.Context, reviewTexts []string, productRef string) (*Metrics, error)
	GenerateSummary(ctx context.Context, reviewTexts []string, metrics *Metrics) (*Summary, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new LLM client
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 3 * time.Minute, // large prompts over slow backends
		},
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []chatMessage  `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const metricsSystemPrompt = `You are a data analysis engine. Analyze product reviews and output a single JSON object with exactly these keys:
sentiment: {"positive": number, "negative": number, "neutral": number}
aspects: {"<aspect_name>": {"positive": number, "negative": number, "neutral": number}, ...}
keywords: string[]
issues: string[]
trend: {"<week>": number}
aspects MUST be a JSON object keyed by aspect name, never an array.
Only report aspects and issues actually mentioned in the reviews. Never invent data. All text inside the JSON must be written in Korean.`

const summarySystemPrompt = `You are a product review analyst. Use only the provided review texts and metrics as evidence. Output one JSON object with exactly these keys:
summary: string
insights: {"marketing": string[], "quality": string[]}
evidence_ids: string[]
metadata: object
Never invent product categories, features, or issues not present in the reviews. All text inside the JSON must be written in Korean.`

// ExtractMetrics runs analysis stage 1 over a bounded review sample
func (c *Client) ExtractMetrics(ctx context.Context, reviewTexts []string, productRef string) (*Metrics, error) {
	sample := sampleTexts(reviewTexts)
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review sample: %w", err)
	}

	userPrompt := fmt.Sprintf(
		"Product %s has %d reviews. Sample of %d review texts:\n%s\nExtract sentiment, aspects, keywords, issues and trend from these reviews as JSON.",
		productRef, len(reviewTexts), len(sample), string(sampleJSON),
	)

	raw, err := c.complete(ctx, metricsSystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return validateMetrics(raw)
}

// GenerateSummary runs analysis stage 2 from the stage-1 metrics plus the
// same review sample
func (c *Client) GenerateSummary(ctx context.Context, reviewTexts []string, metrics *Metrics) (*Summary, error) {
	sample := sampleTexts(reviewTexts)
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review sample: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	userPrompt := fmt.Sprintf(
		"Stage-1 metrics:\n%s\nReview sample:\n%s\nProduce the summary, marketing/quality insights, evidence_ids and metadata as JSON.",
		string(metricsJSON), string(sampleJSON),
	)

	raw, err := c.complete(ctx, summarySystemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	return validateSummary(raw)
}

// complete performs one chat completion call and returns the message content
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	reqBody := chatRequest{
		Model:          c.model,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call llm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal llm envelope: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	return []byte(chat.Choices[0].Message.Content), nil
}

func sampleTexts(texts []string) []string {
	if len(texts) > sampleSize {
		return texts[:sampleSize]
	}
	return texts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
