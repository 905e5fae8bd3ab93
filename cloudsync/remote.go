package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the public JSON blob service used when none is
// configured.
const DefaultEndpoint = "https://api.npoint.io"

// maxPayload bounds how much of a response body is read.
const maxPayload = 8 << 20

// Remote is a JSON blob store addressed by opaque ids.
type Remote interface {
	// Create stores body under a new id and returns the id.
	Create(ctx context.Context, body []byte) (string, error)
	// Write overwrites the blob at id.
	Write(ctx context.Context, id string, body []byte) error
	// Read returns the blob at id.
	Read(ctx context.Context, id string) ([]byte, error)
}

// HTTPRemote talks to a blob service exposing POST /, POST /{id} and
// GET /{id}.
type HTTPRemote struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRemote returns a Remote for endpoint. A nil client gets a
// default one with timeout.
func NewHTTPRemote(endpoint string, client *http.Client, timeout time.Duration) *HTTPRemote {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPRemote{endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (r *HTTPRemote) blobURL(id string) string {
	return r.endpoint + "/" + url.PathEscape(id)
}

func (r *HTTPRemote) Create(ctx context.Context, body []byte) (string, error) {
	resp, err := r.do(ctx, http.MethodPost, r.endpoint+"/", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: status %d", ErrAllocation, resp.StatusCode)
	}
	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayload)).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrAllocation, err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: response has no id", ErrAllocation)
	}
	return result.ID, nil
}

func (r *HTTPRemote) Write(ctx context.Context, id string, body []byte) error {
	resp, err := r.do(ctx, http.MethodPost, r.blobURL(id), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxPayload))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: status %d", ErrRemoteWrite, resp.StatusCode)
	}
	return nil
}

func (r *HTTPRemote) Read(ctx context.Context, id string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, r.blobURL(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRemoteNotFound, id)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("read %s: unexpected status %d", id, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	return b, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact sync endpoint: %w", err)
	}
	return resp, nil
}
