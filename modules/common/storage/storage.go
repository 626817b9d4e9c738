package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"scenergy-server/modules/common/config"
)

// ErrNotFound is returned when the requested object does not exist in the bucket.
// The reference resolver keys its fallback chain off this sentinel.
var ErrNotFound = errors.New("storage: object not found")

// Object is a downloaded file with the content type the backend declared.
type Object struct {
	Data        []byte
	ContentType string
}

// Client talks to Supabase Storage over its REST API.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient creates a storage client for the configured bucket.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.SupabaseURL,
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseStorageBucket,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Download fetches an object by bucket-relative path.
func (c *Client) Download(ctx context.Context, path string) (*Object, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, strings.TrimPrefix(path, "/"))
	log.Printf("📥 Downloading from storage: %s", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", path, err)
	}
	defer resp.Body.Close()

	// Supabase answers 400 for missing keys on some deployments, 404 on others.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	log.Printf("✅ Downloaded %s (%d bytes)", path, len(data))
	return &Object{
		Data:        data,
		ContentType: CorrectMIMEType(path, resp.Header.Get("Content-Type")),
	}, nil
}

// DownloadURL fetches an external image by fully-qualified URL.
// The MIME type comes from the response header, corrected against the extension.
func (c *Client) DownloadURL(ctx context.Context, rawURL string) (*Object, error) {
	log.Printf("📥 Downloading external image: %s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return &Object{
		Data:        data,
		ContentType: CorrectMIMEType(rawURL, resp.Header.Get("Content-Type")),
	}, nil
}

// Upload writes an object under the given bucket-relative path.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, strings.TrimPrefix(path, "/"))
	log.Printf("📤 Uploading to storage: %s (%d bytes)", path, len(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Uploaded %s", path)
	return nil
}
