// Package wordjudge provides a client for an external answer-judging
// service that decides whether a word is a valid entry for a category and
// starting letter.
package wordjudge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bastago/basta/internal/logger"
)

// Query is one (category, letter, answer) triple to judge
type Query struct {
	Category string `json:"category"`
	Letter   string `json:"letter"`
	Answer   string `json:"answer"`
}

// Key returns the canonical identity of a query: category, letter, and the
// lower-cased trimmed answer text. Duplicate answers across players share a
// key so the judge is asked once per distinct triple.
func (q Query) Key() string {
	return strings.ToLower(strings.TrimSpace(q.Category)) + "\x00" +
		strings.ToUpper(strings.TrimSpace(q.Letter)) + "\x00" +
		strings.ToLower(strings.TrimSpace(q.Answer))
}

// judgeRequest is the wire format for a batch judging call
type judgeRequest struct {
	Language string  `json:"language,omitempty"`
	Queries  []Query `json:"queries"`
}

// judgeResult is one verdict in the wire response
type judgeResult struct {
	Category string `json:"category"`
	Letter   string `json:"letter"`
	Answer   string `json:"answer"`
	Valid    bool   `json:"valid"`
}

// judgeResponse is the wire format of the judge's reply
type judgeResponse struct {
	Results []judgeResult `json:"results"`
	Error   string        `json:"error,omitempty"`
}

// Client defines the interface for answer judging
type Client interface {
	// JudgeBatch submits a batch of queries and returns validity keyed by
	// Query.Key(). The call may fail; callers are expected to fall back to
	// a local heuristic.
	JudgeBatch(ctx context.Context, language string, queries []Query) (map[string]bool, error)
	// BaseURL returns the configured judge base URL
	BaseURL() string
}

// HTTPClient is a real HTTP client for the judging service
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewHTTPClient creates a new judge HTTP client
func NewHTTPClient(baseURL string, timeout time.Duration, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// NewHTTPClientWithHTTPClient creates a judge client with a custom http.Client
func NewHTTPClientWithHTTPClient(baseURL string, httpClient *http.Client, log logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		log:        log,
	}
}

// BaseURL returns the configured judge base URL
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// JudgeBatch posts the batch to the judge's /judge endpoint
func (c *HTTPClient) JudgeBatch(ctx context.Context, language string, queries []Query) (map[string]bool, error) {
	if len(queries) == 0 {
		return map[string]bool{}, nil
	}

	payload, err := json.Marshal(judgeRequest{Language: language, Queries: queries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode judge request: %w", err)
	}

	apiURL := c.baseURL + "/judge"
	c.log.Debug("Judge request", "url", apiURL, "queries", len(queries))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach judge: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read judge response: %w", err)
	}

	c.log.Debug("Judge response", "status", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge returned status %d: %s", resp.StatusCode, string(body))
	}

	var jr judgeResponse
	if err := json.Unmarshal(body, &jr); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	if jr.Error != "" {
		return nil, fmt.Errorf("judge error: %s", jr.Error)
	}

	verdicts := make(map[string]bool, len(jr.Results))
	for _, res := range jr.Results {
		q := Query{Category: res.Category, Letter: res.Letter, Answer: res.Answer}
		verdicts[q.Key()] = res.Valid
	}

	// A silent omission counts as failure for that key; callers fall back
	for _, q := range queries {
		if _, ok := verdicts[q.Key()]; !ok {
			return nil, fmt.Errorf("judge omitted verdict for %q/%q", q.Category, q.Answer)
		}
	}

	return verdicts, nil
}
