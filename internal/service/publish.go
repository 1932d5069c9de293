package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"path"
	"time"
)

// IndexUploader pushes built distribution files to the package index.
// Rejections are final: there is no retry, and nothing is uploaded
// when a prerequisite stage failed.
type IndexUploader interface {
	Upload(ctx context.Context, filename string, content []byte) error
}

type HTTPIndexClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPIndexClient(endpoint, token string) *HTTPIndexClient {
	return &HTTPIndexClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *HTTPIndexClient) Upload(ctx context.Context, filename string, content []byte) error {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	if err := mw.WriteField(":action", "file_upload"); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("content", path.Base(filename))
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	// token-based upload: the index expects __token__ basic auth
	req.SetBasicAuth("__token__", c.token)

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
