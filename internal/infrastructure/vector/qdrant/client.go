package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/domain"
	"github.com/kirillkom/shiftlog-retrieval/internal/infrastructure/resilience"
)

const (
	backendName = "qdrant"
	dateField   = "date"
)

// Client is the dense vector index. It only holds an *http.Client, which is
// safe for concurrent use, so one Client serves every in-flight retrieval.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	size := len(records[0].Vector)
	for _, r := range records {
		if len(r.Vector) == 0 || len(r.Vector) != size {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("fragment %s has vector size %d, expected %d", r.ID, len(r.Vector), size))
		}
	}

	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	points := make([]point, 0, len(records))
	for _, r := range records {
		points = append(points, point{
			ID:      r.ID,
			Vector:  r.Vector,
			Payload: payloadFor(r),
		})
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.call(ctx, "upsert", http.MethodPut, url, map[string]any{"points": points}, nil)
}

// Search returns the nearest fragments. An active scope is sent as a payload
// filter so the limit applies to in-scope points only. A collection that does
// not exist yet holds no points.
func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	scope domain.DateScope,
) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if scope.Active() {
		reqBody["filter"] = dateFilter(scope)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.call(ctx, "search", http.MethodPost, url, reqBody, &searchResp); err != nil {
		// Nothing has been indexed yet.
		if isMissingCollection(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Candidate{
			FragmentID: fmt.Sprintf("%v", r.ID),
			DocumentID: getStringPayload(r.Payload, "doc_id"),
			Index:      getIntPayload(r.Payload, "chunk_index"),
			Text:       getStringPayload(r.Payload, "text"),
			Metadata: domain.Metadata{
				File:  getStringPayload(r.Payload, "file"),
				Date:  getStringPayload(r.Payload, dateField),
				Unit:  getStringPayload(r.Payload, "unit"),
				Shift: getStringPayload(r.Payload, "shift"),
				Page:  getStringPayload(r.Payload, "page"),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	err := c.call(ctx, "delete", http.MethodPost, url, map[string]any{"points": ids}, nil)
	if isMissingCollection(err) {
		return nil
	}
	return err
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err := c.call(ctx, "ensure collection", http.MethodPut, url, reqBody, nil)
	// 409 means the collection already exists.
	if err != nil && !isStatus(err, http.StatusConflict) {
		return err
	}

	indexBody := map[string]any{
		"field_name":   dateField,
		"field_schema": "keyword",
	}
	indexURL := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	if err := c.call(ctx, "ensure date index", http.MethodPut, indexURL, indexBody, nil); err != nil {
		return err
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) call(ctx context.Context, operation, method, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	err = c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError(backendName, operation, resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

func payloadFor(r domain.VectorRecord) map[string]any {
	payload := map[string]any{
		"doc_id":      r.DocumentID,
		"chunk_index": r.Index,
		"text":        r.Text,
		"file":        r.Metadata.File,
	}
	// Absent keys keep undated fragments out of every date filter.
	if r.Metadata.Date != "" {
		payload[dateField] = r.Metadata.Date
	}
	if r.Metadata.Unit != "" {
		payload["unit"] = r.Metadata.Unit
	}
	if r.Metadata.Shift != "" {
		payload["shift"] = r.Metadata.Shift
	}
	if r.Metadata.Page != "" {
		payload["page"] = r.Metadata.Page
	}
	return payload
}

func dateFilter(scope domain.DateScope) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": dateField,
				"match": map[string]any{
					"any": scope.Dates(),
				},
			},
		},
	}
}

func isStatus(err error, code int) bool {
	var statusErr *resilience.HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

func isMissingCollection(err error) bool {
	return isStatus(err, http.StatusNotFound)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
