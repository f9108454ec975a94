// Package origin is the client for the telephony provider's recording store.
// Recordings live there only briefly; the migration pipeline is its sole
// consumer within this codebase.
package origin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Static errors for origin client operations.
var (
	// ErrCredentialsRequired is returned when API key or secret are missing.
	ErrCredentialsRequired = errors.New("origin: api key and secret are required")
	// ErrBaseURLRequired is returned when the provider base URL is missing.
	ErrBaseURLRequired = errors.New("origin: base URL is required")
	// ErrRecordingNotFound is returned when the provider no longer holds the
	// recording. Deletion treats this as success.
	ErrRecordingNotFound = errors.New("origin: recording not found")
	// ErrRequestFailed is returned for non-2xx responses other than 404.
	ErrRequestFailed = errors.New("origin: request failed")
)

// DefaultPageSize bounds a single listing call to respect provider rate limits.
const DefaultPageSize = 50

// Descriptor is one recording as listed by the provider.
type Descriptor struct {
	ID              string    `json:"sid"`
	CallID          string    `json:"call_sid"`
	AccountID       string    `json:"account_sid"`
	URI             string    `json:"uri"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration,string"`
	Channels        int       `json:"channels"`
	Source          string    `json:"source"`
	CreatedAt       time.Time `json:"date_created"`
}

// Filter bounds a listing call.
type Filter struct {
	// CreatedAfter / CreatedBefore bound the query window; zero means open.
	CreatedAfter  time.Time
	CreatedBefore time.Time
	// PageSize caps one page; 0 uses DefaultPageSize.
	PageSize int
	// All follows pagination to the end instead of returning one page.
	All bool
}

type listResponse struct {
	Recordings  []Descriptor `json:"recordings"`
	NextPageURI string       `json:"next_page_uri"`
}

// Client calls the provider's recordings REST API with basic-auth credentials.
type Client struct {
	baseURL    string
	accountID  string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an origin client. Credentials are a hard precondition:
// every call here needs them, so their absence fails construction rather
// than the first transfer.
func NewClient(baseURL, accountID, apiKey, apiSecret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if apiKey == "" || apiSecret == "" {
		return nil, ErrCredentialsRequired
	}
	c := &Client{
		baseURL:    baseURL,
		accountID:  accountID,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListRecordings returns one page of recording descriptors, or every page
// when filter.All is set.
func (c *Client) ListRecordings(ctx context.Context, filter Filter) ([]Descriptor, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(pageSize))
	if !filter.CreatedAfter.IsZero() {
		q.Set("date_created_after", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !filter.CreatedBefore.IsZero() {
		q.Set("date_created_before", filter.CreatedBefore.UTC().Format(time.RFC3339))
	}

	next := fmt.Sprintf("%s/accounts/%s/recordings?%s", c.baseURL, url.PathEscape(c.accountID), q.Encode())
	var out []Descriptor
	for next != "" {
		var page listResponse
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Recordings...)
		if !filter.All || page.NextPageURI == "" {
			break
		}
		next = c.baseURL + page.NextPageURI
	}
	return out, nil
}

// Download fetches the recording payload fully into memory. The media URL is
// the ephemeral, credentialed one from the descriptor.
func (c *Client) Download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrRecordingNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download status %d", ErrRequestFailed, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// Delete removes the recording from the provider store. A 404 maps to
// ErrRecordingNotFound so callers can classify it as already-deleted.
func (c *Client) Delete(ctx context.Context, recordingID string) error {
	u := fmt.Sprintf("%s/accounts/%s/recordings/%s", c.baseURL, url.PathEscape(c.accountID), url.PathEscape(recordingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRecordingNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: delete status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: list status %d", ErrRequestFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
