package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/shardvault/api"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/metrics"
)

// maxResponseSize caps how much of a node response is read.
const maxResponseSize = 16 << 20

// Client implements interfaces.NodeClient over the node HTTP API.
// It does not retry; each call either succeeds or returns a *interfaces.NodeError.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
	metrics    *metrics.Recorder
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMetrics records per-node request outcomes and latencies.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = recorder
	}
}

// NewClient creates a node client. Timeouts are expected on the context of
// each call; the default HTTP client only carries a generous safety timeout.
func NewClient(log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write creates records on the node. It succeeds only with status 200 and an
// empty data.errors list; a 200 carrying errors is a KindRejected failure.
func (c *Client) Write(ctx context.Context, node interfaces.NodeDescriptor, token string, schemaID string, records []interfaces.StoredRecord) error {
	const op = "write"

	var resp api.DataCreateResponse
	err := c.post(ctx, node, op, api.DataCreatePath, token, api.DataCreateRequest{Schema: schemaID, Data: records}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Data.Errors) != 0 {
		err := &interfaces.NodeError{
			Node:   node.Name,
			Op:     op,
			Kind:   interfaces.KindRejected,
			Status: http.StatusOK,
			Err:    fmt.Errorf("node reported %d record errors, first: %s", len(resp.Data.Errors), resp.Data.Errors[0].Error),
		}
		c.metrics.NodeFailure(node.Name, op, err.Kind)
		return err
	}

	return nil
}

// Read returns records matching filter. A nil filter reads everything.
func (c *Client) Read(ctx context.Context, node interfaces.NodeDescriptor, token string, schemaID string, filter map[string]any) ([]interfaces.StoredRecord, error) {
	const op = "read"

	if filter == nil {
		filter = map[string]any{}
	}

	var resp api.DataReadResponse
	if err := c.post(ctx, node, op, api.DataReadPath, token, api.DataReadRequest{Schema: schemaID, Filter: filter}, &resp); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// CreateSchema registers a collection on the node.
func (c *Client) CreateSchema(ctx context.Context, node interfaces.NodeDescriptor, token string, schema interfaces.Schema) error {
	return c.register(ctx, node, "create_schema", api.SchemasPath, token, schema)
}

// CreateQuery registers a stored query on the node.
func (c *Client) CreateQuery(ctx context.Context, node interfaces.NodeDescriptor, token string, query interfaces.Query) error {
	return c.register(ctx, node, "create_query", api.QueriesPath, token, query)
}

// ExecuteQuery runs a stored query and returns the raw documents.
func (c *Client) ExecuteQuery(ctx context.Context, node interfaces.NodeDescriptor, token string, queryID string, variables map[string]any) ([]map[string]any, error) {
	if variables == nil {
		variables = map[string]any{}
	}

	var resp api.QueryExecuteResponse
	if err := c.post(ctx, node, "execute_query", api.QueryExecutePath, token, api.QueryExecuteRequest{ID: queryID, Variables: variables}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) register(ctx context.Context, node interfaces.NodeDescriptor, op, path, token string, body any) error {
	var resp api.StatusResponse
	if err := c.post(ctx, node, op, path, token, body, &resp); err != nil {
		return err
	}

	if len(resp.Errors) != 0 {
		err := &interfaces.NodeError{
			Node:   node.Name,
			Op:     op,
			Kind:   interfaces.KindRejected,
			Status: http.StatusOK,
			Err:    fmt.Errorf("node reported errors: %v", resp.Errors),
		}
		c.metrics.NodeFailure(node.Name, op, err.Kind)
		return err
	}
	return nil
}

// post sends an authenticated JSON request and decodes a 200 response into out.
func (c *Client) post(ctx context.Context, node interfaces.NodeDescriptor, op, path, token string, body any, out any) error {
	start := time.Now()
	fail := func(kind interfaces.FailureKind, status int, err error) error {
		c.metrics.NodeFailure(node.Name, op, kind)
		c.log.Debug("Node request failed",
			slog.String("node", node.Name),
			slog.String("op", op),
			slog.String("kind", kind.String()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return &interfaces.NodeError{Node: node.Name, Op: op, Kind: kind, Status: status, Err: err}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fail(interfaces.KindMalformed, 0, fmt.Errorf("could not encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Endpoint(path), bytes.NewReader(reqBody))
	if err != nil {
		return fail(interfaces.KindUnavailable, 0, fmt.Errorf("could not initialize request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(interfaces.KindUnavailable, 0, fmt.Errorf("could not reach node: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fail(interfaces.KindUnavailable, resp.StatusCode, fmt.Errorf("could not read response: %w", err))
	}

	c.metrics.NodeLatency(node.Name, op, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fail(interfaces.KindAuth, resp.StatusCode, errors.New(truncate(respBody)))
	case resp.StatusCode != http.StatusOK:
		return fail(interfaces.KindUnavailable, resp.StatusCode, errors.New(truncate(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fail(interfaces.KindMalformed, resp.StatusCode, fmt.Errorf("could not parse response: %w", err))
	}

	c.metrics.NodeSuccess(node.Name, op)
	return nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
