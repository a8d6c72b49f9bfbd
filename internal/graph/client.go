package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/colonylab/nestfeed/pkg/logger"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxRetries = 3
)

// Config holds the subgraph endpoints the client queries.
type Config struct {
	NotificationsURL string
	EarlyStageURL    string
	StakingURL       string

	Timeout    time.Duration
	MaxRetries int
}

// Client issues GraphQL queries against the indexed event log and its sibling
// subgraphs. It is stateless beyond connection configuration.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
	log  *zap.Logger
}

// leveledZap adapts the retrying HTTP client's leveled logging onto zap.
// Transport errors log as warnings because the client retries them.
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, keysAndValues ...any) { l.inner.Warnw(msg, keysAndValues...) }
func (l leveledZap) Warn(msg string, keysAndValues ...any)  { l.inner.Warnw(msg, keysAndValues...) }
func (l leveledZap) Info(msg string, keysAndValues ...any)  { l.inner.Debugw(msg, keysAndValues...) }
func (l leveledZap) Debug(msg string, keysAndValues ...any) { l.inner.Debugw(msg, keysAndValues...) }

// NewClient constructs a graph client for the configured endpoints.
func NewClient(cfg Config) (*Client, error) {
	if cfg.NotificationsURL == "" {
		return nil, errors.New("graph: notifications endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	log := logger.WithModule("graph")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.MaxRetries
	rc.Logger = retryablehttp.LeveledLogger(leveledZap{inner: log.Sugar()})

	return &Client{cfg: cfg, http: rc, log: log}, nil
}

type graphRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphError struct {
	Message string `json:"message"`
}

type graphResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphError    `json:"errors"`
}

// query posts a GraphQL request to the given endpoint and decodes the data
// payload into out.
func (c *Client) query(ctx context.Context, endpoint, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("graph: encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph: unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("graph: read response: %w", err)
	}

	var decoded graphResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return fmt.Errorf("graph: query rejected: %s", decoded.Errors[0].Message)
	}
	if decoded.Data == nil {
		return errors.New("graph: response has no data")
	}

	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("graph: decode data: %w", err)
	}

	return nil
}
