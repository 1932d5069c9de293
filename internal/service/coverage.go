package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CoverageUploader sends a cell's coverage report to the aggregator.
// An upload failure fails the cell even though its tests passed:
// reporting is part of the success contract.
type CoverageUploader interface {
	Upload(ctx context.Context, flag, commitSHA string, report []byte) error
}

type HTTPCoverageClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPCoverageClient(endpoint, token string) *HTTPCoverageClient {
	return &HTTPCoverageClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPCoverageClient) Upload(
	ctx context.Context,
	flag, commitSHA string,
	report []byte,
) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("flags", flag)
	q.Set("commit", commitSHA)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, u.String(), bytes.NewReader(report))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))

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
