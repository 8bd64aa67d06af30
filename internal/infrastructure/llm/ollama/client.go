// Package ollama embeds fragment and question text through the Ollama
// /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/resilience"
)

const (
	backendName = "ollama"

	// defaultBatchSize caps the inputs sent in one embed request so a long
	// report does not hold the model for minutes in one call.
	defaultBatchSize = 32
)

type Client struct {
	baseURL    string
	embedModel string
	batchSize  int
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithRateLimit throttles outgoing embed requests. rps <= 0 disables
// throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func New(baseURL, embedModel string, executor *resilience.Executor, opts ...Option) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		batchSize:  defaultBatchSize,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embedder turns fragment and question text into dense vectors.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Embed returns one vector per text, in order. All vectors share one
// dimension.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.client.batchSize {
		batch := texts[start:min(start+e.client.batchSize, len(texts))]
		vectors, err := e.client.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	for i, v := range out {
		if len(v) == 0 || len(v) != len(out[0]) {
			return nil, fmt.Errorf("ollama embed: vector %d has dimension %d, want %d", i, len(v), len(out[0]))
		}
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ollama embed: empty result")
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	request := embedRequest{Model: c.embedModel, Input: batch}
	response, err := resilience.Do(ctx, c.executor, "ollama.embed", func(ctx context.Context) (embedResponse, error) {
		var out embedResponse
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return out, err
			}
		}
		err := c.postJSON(ctx, "/api/embed", request, &out)
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, resilience.ClassifyHTTPError)
	}
	if len(response.Embeddings) != len(batch) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(batch), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(backendName, strings.TrimPrefix(path, "/api/"), resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama %s response: %w", path, err)
	}
	return nil
}
