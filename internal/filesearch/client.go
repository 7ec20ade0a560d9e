// Package filesearch talks to the hosted File Search backend over REST:
// store management, resumable document upload and grounded retrieval.
package filesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the backend
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	msg := gjson.Get(e.Body, "error.message").String()
	if msg == "" {
		msg = truncate(e.Body, 300)
	}
	return fmt.Sprintf("file search API status %d: %s", e.Status, msg)
}

// Transient reports whether retrying the request may succeed
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client is a File Search REST client
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates a client for the configured backend
func New(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: 2 * time.Second,
		logger:       logger.Named("filesearch"),
	}
}

// AskRequest is a grounded generation request over one or more stores
type AskRequest struct {
	Stores         []string
	Model          string
	Prompt         string
	System         string
	IncludeSources bool
}

// Answer is the generated text plus the titles of the grounding documents
type Answer struct {
	Text    string
	Sources []string
}

// CreateStore creates a store and returns its resource name
func (c *Client) CreateStore(ctx context.Context, displayName string) (string, error) {
	res, err := c.doJSON(ctx, http.MethodPost, c.apiURL("fileSearchStores"), map[string]string{
		"displayName": displayName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create store: %w", err)
	}
	name := res.Get("name").String()
	if name == "" {
		return "", fmt.Errorf("create store response has no name")
	}
	return name, nil
}

// DeleteStore deletes a store and everything in it
func (c *Client) DeleteStore(ctx context.Context, name string) error {
	u := c.apiURL(name) + "?force=true"
	if _, err := c.doJSON(ctx, http.MethodDelete, u, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete store: %w", err)
	}
	return nil
}

// ListStores lists every store visible to the API key
func (c *Client) ListStores(ctx context.Context) ([]domain.RemoteStore, error) {
	var stores []domain.RemoteStore
	pageToken := ""
	for {
		u := c.apiURL("fileSearchStores") + "?pageSize=20"
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}
		res, err := c.doJSON(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list stores: %w", err)
		}
		res.Get("fileSearchStores").ForEach(func(_, s gjson.Result) bool {
			stores = append(stores, domain.RemoteStore{
				Name:        s.Get("name").String(),
				DisplayName: s.Get("displayName").String(),
			})
			return true
		})
		pageToken = res.Get("nextPageToken").String()
		if pageToken == "" {
			return stores, nil
		}
	}
}

// UploadFile uploads a local file into a store and waits until it is indexed
func (c *Client) UploadFile(ctx context.Context, store, path, displayName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Start resumable session
	meta, _ := json.Marshal(map[string]string{"displayName": displayName})
	startURL := fmt.Sprintf("%s/upload/v1beta/%s:uploadToFileSearchStore", c.baseURL, store)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, startURL, bytes.NewReader(meta))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", fmt.Sprintf("%d", stat.Size()))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", MimeType(path))

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("upload start failed: %w", err)
	}
	resp.Body.Close()

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return fmt.Errorf("no upload URL returned in headers")
	}

	// Upload bytes
	reqUpload, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return err
	}
	reqUpload.ContentLength = stat.Size()
	reqUpload.Header.Set("X-Goog-Upload-Offset", "0")
	reqUpload.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	respUpload, err := c.do(reqUpload)
	if err != nil {
		return fmt.Errorf("upload finalization failed: %w", err)
	}
	defer respUpload.Body.Close()

	body, err := io.ReadAll(respUpload.Body)
	if err != nil {
		return fmt.Errorf("failed to read upload response: %w", err)
	}

	op := gjson.ParseBytes(body)
	c.logger.Debug("upload accepted",
		zap.String("store", store),
		zap.String("file", displayName),
		zap.String("operation", op.Get("name").String()),
	)
	return c.waitOperation(ctx, op)
}

func (c *Client) waitOperation(ctx context.Context, op gjson.Result) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if op.Get("done").Bool() {
			if msg := op.Get("error.message").String(); msg != "" {
				return fmt.Errorf("indexing failed: %s", msg)
			}
			return nil
		}
		name := op.Get("name").String()
		if name == "" {
			return fmt.Errorf("upload response has no operation name")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next, err := c.doJSON(ctx, http.MethodGet, c.apiURL(name), nil)
		if err != nil {
			return fmt.Errorf("failed to poll operation: %w", err)
		}
		op = next
	}
}

// Ask runs a grounded generation against the given stores
func (c *Client) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if len(req.Stores) == 0 {
		return nil, fmt.Errorf("at least one store is required")
	}

	body := map[string]any{
		"contents": []map[string]any{{
			"role":  "user",
			"parts": []map[string]string{{"text": req.Prompt}},
		}},
		"tools": []map[string]any{{
			"fileSearch": map[string]any{"fileSearchStoreNames": req.Stores},
		}},
	}
	if req.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.System}},
		}
	}

	u := c.apiURL("models/" + strings.TrimPrefix(req.Model, "models/") + ":generateContent")
	res, err := c.doJSON(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("file search query failed: %w", err)
	}

	answer := &Answer{Text: ParseText(res)}
	if req.IncludeSources {
		answer.Sources = ParseSources(res)
	}
	return answer, nil
}

// ParseText concatenates the text parts of the first candidate
func ParseText(res gjson.Result) string {
	var sb strings.Builder
	res.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		if part.Get("thought").Bool() {
			return true
		}
		sb.WriteString(part.Get("text").String())
		return true
	})
	return strings.TrimSpace(sb.String())
}

// ParseSources returns the distinct titles of the retrieved grounding chunks
func ParseSources(res gjson.Result) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, t := range res.Get("candidates.0.groundingMetadata.groundingChunks.#.retrievedContext.title").Array() {
		title := t.String()
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		sources = append(sources, title)
	}
	return sources
}

func (c *Client) apiURL(resource string) string {
	return c.baseURL + "/v1beta/" + strings.TrimPrefix(resource, "/")
}

// doJSON sends a JSON request, retrying once with jitter on transient failures
func (c *Client) doJSON(ctx context.Context, method, u string, payload any) (gjson.Result, error) {
	var raw []byte
	if payload != nil {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return gjson.Result{}, err
		}
	}

	var result gjson.Result
	err := retry.Do(
		func() error {
			var body io.Reader
			if raw != nil {
				body = bytes.NewReader(raw)
			}
			req, err := http.NewRequestWithContext(ctx, method, u, body)
			if err != nil {
				return err
			}
			if raw != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			result = gjson.ParseBytes(data)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(500*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying file search request", zap.String("url", redact(u)), zap.Error(err))
		}),
	)
	return result, err
}

// do sends req with the API key and turns non-2xx responses into *APIError
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, domain.ErrBackendUnavailable
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrBackendUnavailable) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}

func redact(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
