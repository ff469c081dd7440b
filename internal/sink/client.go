// Package sink talks to the SurrealDB HTTP API: it imports statement batches
// as single transactions through /import and runs ad-hoc statements through
// /sql.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StatusErr marks a failed statement in a response.
const StatusErr = "ERR"

// DefaultTimeout bounds one HTTP round trip.
const DefaultTimeout = 10 * time.Minute

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 * 1024

// Config holds connection settings for a SurrealDB instance.
type Config struct {
	Endpoint  string
	Username  string
	Password  string
	Namespace string
	Database  string
	Timeout   time.Duration
}

// Result is the outcome of one statement.
type Result struct {
	Status string          `json:"status"`
	Time   string          `json:"time,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Failed returns true if the statement reported an error.
func (r Result) Failed() bool {
	return r.Status == StatusErr
}

// Message returns the result as text. Error results carry a JSON string.
func (r Result) Message() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// TransportError is returned when the server answers with a non-success
// status code.
type TransportError struct {
	Path   string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s returned %d %s: %s", e.Path, e.Status, http.StatusText(e.Status), e.Body)
}

// StatementErrors is returned by SQL when any statement reported ERR.
type StatementErrors struct {
	SQL      string
	Messages []string
}

func (e *StatementErrors) Error() string {
	return fmt.Sprintf("sql errors:\n%s\nSQL:\n%s", strings.Join(e.Messages, "\n"), e.SQL)
}

// Client is a SurrealDB HTTP client. It is safe for concurrent use.
type Client struct {
	hc     *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a client for cfg. If logger is nil, a discard logger is used.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("sink endpoint is required")
	}
	if cfg.Namespace == "" || cfg.Database == "" {
		return nil, errors.New("sink namespace and database are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &Client{
		hc:     &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Namespace returns the namespace the client writes to.
func (c *Client) Namespace() string {
	return c.cfg.Namespace
}

// ImportBody frames statements as one import transaction.
func ImportBody(statements []string) string {
	return fmt.Sprintf("BEGIN TRANSACTION;\nOPTION IMPORT;\n%s\nCOMMIT TRANSACTION;",
		strings.Join(statements, "\n"))
}

// Import runs statements as a single transaction and returns the
// per-statement results. Statement failures are reported in the results,
// not as an error. Results the server reports for the transaction framing
// are removed; see AlignResults.
func (c *Client) Import(ctx context.Context, statements []string) ([]Result, error) {
	c.logger.Debug("importing batch", slog.Int("statements", len(statements)))
	results, err := c.post(ctx, "/import", ImportBody(statements))
	if err != nil {
		return nil, err
	}
	aligned := AlignResults(results, len(statements))
	if len(aligned) != len(statements) {
		c.logger.Warn("import result count does not match batch",
			slog.Int("statements", len(statements)),
			slog.Int("results", len(results)))
	}
	return aligned, nil
}

// AlignResults drops the results of the framing ImportBody adds around n
// statements. With n+3 results the first two (BEGIN, OPTION) and the last
// (COMMIT) are framing; with n+1 only the leading OPTION is. Any other count
// is returned unchanged.
func AlignResults(results []Result, n int) []Result {
	switch len(results) {
	case n + 3:
		return results[2 : n+2]
	case n + 1:
		return results[1:]
	default:
		return results
	}
}

// SQL runs an ad-hoc query and fails if any statement reported ERR.
func (c *Client) SQL(ctx context.Context, sql string) error {
	results, err := c.post(ctx, "/sql", sql)
	if err != nil {
		return err
	}

	var msgs []string
	for _, r := range results {
		if r.Failed() {
			msgs = append(msgs, r.Message())
		}
	}
	if len(msgs) > 0 {
		return &StatementErrors{SQL: sql, Messages: msgs}
	}
	return nil
}

// RemoveNamespace drops the configured namespace if it exists.
func (c *Client) RemoveNamespace(ctx context.Context) error {
	return c.SQL(ctx, fmt.Sprintf("REMOVE NAMESPACE IF EXISTS %s;", c.cfg.Namespace))
}

func (c *Client) post(ctx context.Context, path, body string) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Surreal-NS", c.cfg.Namespace)
	req.Header.Set("Surreal-DB", c.cfg.Database)
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{Path: path, Status: resp.StatusCode, Body: string(text)}
	}

	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	for i, r := range results {
		if r.Status == "" {
			return nil, fmt.Errorf("failed to parse %s result %d: no 'status' field", path, i)
		}
	}

	c.logger.Debug("request complete",
		slog.String("path", path),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}
