package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bsforge/collector/internal/model"
)

// WorkerClient talks to the Python worker that hosts translation and
// classification models.
type WorkerClient struct {
	baseURL string
	http    *http.Client
}

func NewWorkerClient(baseURL string) *WorkerClient {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &WorkerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type translateResponse struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Categories []string            `json:"categories"`
	Keywords   []string            `json:"keywords"`
	Entities   map[string][]string `json:"entities"`
	Summary    string              `json:"summary"`
}

func (w *WorkerClient) Translate(ctx context.Context, text, from, to string) (string, error) {
	resp, err := post[translateResponse](ctx, w, "/translate", map[string]any{
		"text":        text,
		"source_lang": from,
		"target_lang": to,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (w *WorkerClient) Classify(ctx context.Context, title string, content *string) (*model.Classification, error) {
	resp, err := post[classifyResponse](ctx, w, "/classify", map[string]any{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return nil, err
	}
	return &model.Classification{
		Categories: resp.Categories,
		Keywords:   resp.Keywords,
		Entities:   resp.Entities,
		Summary:    resp.Summary,
	}, nil
}

func post[T any](ctx context.Context, w *WorkerClient, path string, body any) (*T, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("worker %s: status %d", path, resp.StatusCode)
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("worker %s: decode: %w", path, err)
	}
	return &result, nil
}
