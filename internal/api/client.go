package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/cvtailor/internal/config"
)

// ErrUnauthorized is matched by any *Error carrying a 401 status.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx answer from the backend.
type Error struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: %s %s status=%d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s %s status=%d", e.Method, e.Path, e.Status)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// UserMessage returns the backend-provided message, if any.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

type tokenKey struct{}

// WithToken attaches the session bearer token to ctx. Every request made with
// the returned context carries it in the Authorization header.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		log: log,
	}
}

type requestOptions struct {
	query   url.Values
	body    any
	headers map[string]string
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := c.send(ctx, http.MethodGet, path, requestOptions{query: query})
	if err != nil {
		return err
	}
	return decode(raw, out, path)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.send(ctx, method, path, requestOptions{body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(raw, out, path)
}

func (c *Client) send(ctx context.Context, method, path string, opts requestOptions) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(opts.query) > 0 {
		fullURL += "?" + opts.query.Encode()
	}

	var reader io.Reader
	if opts.body != nil {
		payload, err := json.Marshal(opts.body)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Warn("api request failed", "method", method, "path", path, "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return nil, &Error{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: errorMessage(rawBody),
		}
	}
	return rawBody, nil
}

func decode(raw []byte, out any, path string) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w (body=%s)", path, err, truncateBody(raw))
	}
	return nil
}

// errorMessage extracts the human readable "message" field. Validation errors
// sometimes arrive as an array of strings.
func errorMessage(body []byte) string {
	var parsed struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Message) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(parsed.Message, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(parsed.Message, &many); err == nil {
		return strings.Join(many, "; ")
	}
	return ""
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
