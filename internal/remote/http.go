package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"declutter-go/internal/declutter"
)

const (
	DefaultGraphURL   = "https://graph.microsoft.com/v1.0"
	DefaultDriveURL   = "https://www.googleapis.com"
	DefaultDropboxURL = "https://api.dropboxapi.com"
)

// APIError is a non-success response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPDeleter deletes files through a provider's REST API. The client is
// expected to attach credentials, as an oauth2 client does.
type HTTPDeleter struct {
	provider string
	client   *http.Client
	baseURL  string
	build    func(ctx context.Context, baseURL, id string) (*http.Request, error)
	// gone reports whether a response means the file no longer exists.
	gone func(resp *http.Response, body []byte) bool
}

var _ declutter.RemoteDeleter = (*HTTPDeleter)(nil)

// NewOneDriveDeleter deletes drive items through Microsoft Graph.
func NewOneDriveDeleter(client *http.Client, baseURL string) *HTTPDeleter {
	return &HTTPDeleter{
		provider: "onedrive",
		client:   client,
		baseURL:  orDefault(baseURL, DefaultGraphURL),
		build: func(ctx context.Context, base, id string) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodDelete, base+"/me/drive/items/"+url.PathEscape(id), nil)
		},
		gone: notFound,
	}
}

// NewGoogleDriveDeleter deletes files through the Drive v3 API. Deletion is
// permanent and skips the trash.
func NewGoogleDriveDeleter(client *http.Client, baseURL string) *HTTPDeleter {
	return &HTTPDeleter{
		provider: "googledrive",
		client:   client,
		baseURL:  orDefault(baseURL, DefaultDriveURL),
		build: func(ctx context.Context, base, id string) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodDelete, base+"/drive/v3/files/"+url.PathEscape(id), nil)
		},
		gone: notFound,
	}
}

// NewDropboxDeleter deletes files through files/delete_v2. The cloud-native
// id is passed as the path argument, which accepts "id:..." identifiers.
func NewDropboxDeleter(client *http.Client, baseURL string) *HTTPDeleter {
	return &HTTPDeleter{
		provider: "dropbox",
		client:   client,
		baseURL:  orDefault(baseURL, DefaultDropboxURL),
		build: func(ctx context.Context, base, id string) (*http.Request, error) {
			body, err := json.Marshal(map[string]string{"path": id})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/2/files/delete_v2", bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			return req, nil
		},
		gone: func(resp *http.Response, body []byte) bool {
			return resp.StatusCode == http.StatusConflict && bytes.Contains(body, []byte("not_found"))
		},
	}
}

// DeleteRemoteFile issues the delete request. A file that is already gone
// counts as deleted.
func (d *HTTPDeleter) DeleteRemoteFile(ctx context.Context, cloudNativeID string) error {
	if cloudNativeID == "" {
		return fmt.Errorf("%s: empty file id", d.provider)
	}
	req, err := d.build(ctx, strings.TrimSuffix(d.baseURL, "/"), cloudNativeID)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", d.provider, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", d.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if d.gone != nil && d.gone(resp, body) {
		return nil
	}
	return &APIError{Provider: d.provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func notFound(resp *http.Response, _ []byte) bool {
	return resp.StatusCode == http.StatusNotFound
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// UnsupportedDeleter fails every delete with ErrUnsupported. The Google
// Photos Library API exposes no delete call for media items.
type UnsupportedDeleter struct {
	Provider string
}

func (d UnsupportedDeleter) DeleteRemoteFile(context.Context, string) error {
	return fmt.Errorf("%s: %w", d.Provider, ErrUnsupported)
}
