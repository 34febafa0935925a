package counts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/models"
)

// Config holds connection settings for the inventory backend
type Config struct {
	BaseURL        string
	Token          string
	OrganizationID string
	Timeout        time.Duration
}

// APIError is a non-2xx or success:false response
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Client talks to the backend's /inventory-counts resource.
// It holds no state besides its configuration.
type Client struct {
	baseURL string
	orgID   string
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	token string
}

// NewClient creates a new counts API client
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		orgID:   cfg.OrganizationID,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.Named("counts_api"),
		now:     time.Now,
	}, nil
}

// SetToken replaces the bearer token handed over by the host app
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CreateCount creates the backend count resource with its ordered areas
func (c *Client) CreateCount(ctx context.Context, req CreateCountRequest) (*Count, error) {
	return call[*Count](ctx, c, http.MethodPost, "/inventory-counts", req)
}

// UpdateCount patches name, notes or status of a count
func (c *Client) UpdateCount(ctx context.Context, id string, req UpdateCountRequest) (*Count, error) {
	return call[*Count](ctx, c, http.MethodPut, "/inventory-counts/"+url.PathEscape(id), req)
}

// UpdateAreaStatus sets the status of one area of a count
func (c *Client) UpdateAreaStatus(ctx context.Context, countID, areaID string, status models.AreaStatus) error {
	path := fmt.Sprintf("/inventory-counts/%s/areas/%s", url.PathEscape(countID), url.PathEscape(areaID))
	_, err := call[json.RawMessage](ctx, c, http.MethodPut, path, areaStatusRequest{Status: status})
	return err
}

// AddCountItem records a counted quantity against a count area
func (c *Client) AddCountItem(ctx context.Context, countID string, req AddItemRequest) (*CountItemRef, error) {
	return call[*CountItemRef](ctx, c, http.MethodPost, "/inventory-counts/"+url.PathEscape(countID)+"/items", req)
}

// ApproveCount marks a completed count as reviewed so the backend applies it
// to live inventory.
func (c *Client) ApproveCount(ctx context.Context, id string) (*Count, error) {
	return c.UpdateCount(ctx, id, StatusUpdate(models.CountStatusApproved))
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T

	token := c.currentToken()
	if tokenExpired(token, c.now()) {
		return zero, ErrTokenExpired
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-Id", c.orgID)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
		var env envelope[json.RawMessage]
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = firstNonEmpty(env.Error, env.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return zero, apiErr
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return zero, nil
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	if !env.Success {
		return zero, &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    firstNonEmpty(env.Error, env.Message, "request unsuccessful"),
		}
	}
	return env.Data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
