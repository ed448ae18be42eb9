package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"eris/internal/eris"
)

// Client implements the block store interface by forwarding requests
// to a remote erisd server. Concurrent gets of the same reference are
// collapsed into a single request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
}

var _ eris.Store = (*Client)(nil)

// NewClient creates a new HTTP block store client.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) blockURL(ref eris.Reference) string {
	return fmt.Sprintf("%s/blocks/%s", c.baseURL, ref)
}

// Get retrieves the block stored under ref. Callers that arrive while
// an identical fetch is in flight share its result; the first caller's
// context governs the request.
func (c *Client) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	v, err, _ := c.group.Do(ref.String(), func() (any, error) {
		return c.fetch(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]byte)), nil
}

func (c *Client) fetch(ctx context.Context, ref eris.Reference) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.blockURL(ref), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.blockURL(ref), err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", ref, eris.ErrBlockNotFound)
	default:
		return nil, fmt.Errorf("get %s: unexpected status code: %d", c.blockURL(ref), resp.StatusCode)
	}
	block, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", c.blockURL(ref), err)
	}
	return block, nil
}

// Put stores a block under its reference.
func (c *Client) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.blockURL(ref), bytes.NewReader(block))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", c.blockURL(ref), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("put %s: unexpected status code: %d", c.blockURL(ref), resp.StatusCode)
	}
	return nil
}

// Has reports whether the server holds ref.
func (c *Client) Has(ctx context.Context, ref eris.Reference) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.blockURL(ref), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("head %s: %w", c.blockURL(ref), err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("head %s: unexpected status code: %d", c.blockURL(ref), resp.StatusCode)
}

// ID returns the remote server's node id.
func (c *Client) ID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/id", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get id: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get id: unexpected status code: %d", resp.StatusCode)
	}
	id, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
