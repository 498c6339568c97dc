// Package client talks to the Soma HTTP API on behalf of the terminal focus client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/soma/apps/api/echo"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/timer"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (err *APIError) Error() string {
	if err.Message != "" {
		return err.Message
	}
	keys := make([]string, 0, len(err.Fields))
	for k := range err.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+err.Fields[k])
	}
	if len(parts) == 0 {
		return http.StatusText(err.StatusCode)
	}
	return strings.Join(parts, "; ")
}

// IsUnauthorized reports whether err is a 401 answer (missing, invalid or expired token).
func IsUnauthorized(err error) bool {
	apiErr, ok := errors.Cause(err).(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// New returns a client of the API rooted at baseURL (e.g. http://localhost:8000).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Token() string { return c.token }

// Login exchanges credentials for a token, kept for the next calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp echoapi.LoginResponse
	req := echoapi.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/v1/users/login", req, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

func (c *Client) Timer(ctx context.Context) (timer.View, error) {
	var v timer.View
	err := c.do(ctx, http.MethodGet, "/v1/timer", nil, &v)
	return v, err
}

func (c *Client) Start(ctx context.Context, opts timer.StartOptions) (timer.View, error) {
	var v timer.View
	err := c.do(ctx, http.MethodPost, "/v1/timer/start", opts, &v)
	return v, err
}

func (c *Client) Pause(ctx context.Context) (timer.View, error)   { return c.action(ctx, "pause") }
func (c *Client) Resume(ctx context.Context) (timer.View, error)  { return c.action(ctx, "resume") }
func (c *Client) Stop(ctx context.Context) (timer.View, error)    { return c.action(ctx, "stop") }
func (c *Client) Skip(ctx context.Context) (timer.View, error)    { return c.action(ctx, "skip") }
func (c *Client) Discard(ctx context.Context) (timer.View, error) { return c.action(ctx, "discard") }

func (c *Client) action(ctx context.Context, name string) (timer.View, error) {
	var v timer.View
	err := c.do(ctx, http.MethodPost, "/v1/timer/"+name, nil, &v)
	return v, err
}

func (c *Client) Progress(ctx context.Context) (gamification.Progress, error) {
	var p gamification.Progress
	err := c.do(ctx, http.MethodGet, "/v1/progress", nil, &p)
	return p, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %s", method, path))
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, out), "decoding response")
}

// decodeError reads {"error": "..."} or a field -> message map.
func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	if msg, ok := fields["error"]; ok && len(fields) == 1 {
		apiErr.Message = msg
		return apiErr
	}
	apiErr.Fields = fields
	return apiErr
}
