// Package filehost uploads license documents and images to an external file
// hosting API and returns their public URLs.
package filehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxUploadBytes caps the size of any uploaded file.
const MaxUploadBytes = 5 << 20

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Uploader stores a named blob and returns a stable public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true, ".pdf": true,
}

// ObjectName returns a collision-free name under folder keeping the extension
// of original. Only image and PDF extensions are accepted.
func ObjectName(folder, original string) (string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	return path.Join(folder, uuid.NewString()+ext), nil
}

// readLimited reads r whole, failing with ErrTooLarge past MaxUploadBytes.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// Client talks to an HTTP file hosting API that accepts a multipart "file"
// field plus a "name" field and answers with {"data":{"url":"..."}} or
// {"url":"..."}.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	URL  string `json:"url"`
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
	Error interface{} `json:"error"`
}

func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", path.Base(name))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("file host endpoint: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("file host upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("file host response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("file host upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("file host response: %w", err)
	}
	switch {
	case out.Data.URL != "":
		return out.Data.URL, nil
	case out.URL != "":
		return out.URL, nil
	}
	return "", errors.New("file host response: missing url")
}

// DiskUploader writes files under Dir and serves them below BaseURL. It backs
// local development when no file host is configured.
type DiskUploader struct {
	Dir     string
	BaseURL string
}

func (d DiskUploader) Upload(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + name)
	dst := filepath.Join(d.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return strings.TrimRight(d.BaseURL, "/") + clean, nil
}
