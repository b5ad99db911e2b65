package hub

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"modsync/internal/syncerr"

	"github.com/imroc/req/v3"
)

// Client is an ObjectStore backed by a hub Server.
type Client struct {
	baseURL string
	client  *req.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(2*time.Minute).
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1*time.Second).
		SetUserAgent("modsync")
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}

	return &Client{baseURL: baseURL, client: client}
}

func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(pathHealth)

	return handleAPIError(resp, err, "health check")
}

func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetContentType("application/octet-stream").
		SetBodyBytes(data).
		Put(pathObjects + "/" + key)

	return handleAPIError(resp, err, "put "+key)
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(pathObjects + "/" + key)

	if err == nil && resp.StatusCode == http.StatusNotFound {
		return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
	}

	if err := handleAPIError(resp, err, "get "+key); err != nil {
		return nil, err
	}

	return resp.Bytes(), nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var out listResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("prefix", prefix).
		SetSuccessResult(&out).
		Get(pathObjects)

	if err := handleAPIError(resp, err, "list "+prefix); err != nil {
		return nil, err
	}

	return out.Keys, nil
}

func (c *Client) URL(key string) string {
	return c.baseURL + pathObjects + "/" + key
}

func (c *Client) ParseURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, c.baseURL+pathObjects+"/")
	if !ok {
		return "", fmt.Errorf("%s is not served by %s", url, c.baseURL)
	}

	return key, nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("hub request failed: %s: %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		return fmt.Errorf("hub error: %s: %d %s", operation, resp.StatusCode, strings.TrimSpace(resp.String()))
	}

	return nil
}
