package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// apiClient speaks JSON to the media proxy HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
	Body    map[string]any
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

func (c *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *apiClient) post(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.do(ctx, http.MethodPost, path, query, body, out)
}

func (c *apiClient) delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodDelete, path, query, nil, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, c.http, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// download copies a raw response body to w. The client timeout does not
// apply; a transfer runs until it finishes or ctx ends.
func (c *apiClient) download(ctx context.Context, path string, query url.Values, w io.Writer) (int64, error) {
	unbounded := *c.http
	unbounded.Timeout = 0

	resp, err := c.send(ctx, &unbounded, http.MethodGet, path, query, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read %s: %w", path, err)
	}
	return n, nil
}

// send performs a request and turns error statuses into *apiError. The
// caller closes the body of a successful response.
func (c *apiClient) send(ctx context.Context, hc *http.Client, method, path string, query url.Values, body any) (*http.Response, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, wrapDialError(err, c.base)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err == nil {
			if msg, ok := apiErr.Body["error"].(string); ok {
				apiErr.Message = msg
			}
		}
		return nil, apiErr
	}
	return resp, nil
}

func wrapDialError(err error, server string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to %s: connection refused; is the server running?", server)
	case strings.Contains(err.Error(), "no such host"):
		return fmt.Errorf("connect to %s: unknown host", server)
	default:
		return fmt.Errorf("connect to %s: %w", server, err)
	}
}

// isStatus reports whether err is an apiError with the given status.
func isStatus(err error, status int) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
