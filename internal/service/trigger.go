package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// TriggerNotifier fires a downstream CI system's build after the
// pipeline passes on the main branch.
type TriggerNotifier interface {
	Fire(ctx context.Context, branch string) error
}

type HTTPTriggerClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPTriggerClient(endpoint, token string) *HTTPTriggerClient {
	return &HTTPTriggerClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPTriggerClient) Fire(ctx context.Context, branch string) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return err
	}
	// the downstream API takes the token as a query parameter
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"branch": branch})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadError{Endpoint: c.endpoint, Status: resp.Status}
	}
	return nil
}
