package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Static errors for CDN maintenance calls.
var (
	// ErrCDNNotConfigured is returned when the API key or zone ID is missing.
	ErrCDNNotConfigured = errors.New("durable: cdn api key and zone id are required")
	// ErrCDNRequestFailed is returned for non-2xx CDN API responses.
	ErrCDNRequestFailed = errors.New("durable: cdn request failed")
)

// ZoneStats reports aggregate usage of the storage zone behind the CDN.
type ZoneStats struct {
	UsedBytes int64 `json:"storage_used"`
	FileCount int64 `json:"file_count"`
}

// CDNClient issues edge-cache purges and zone statistics calls against the
// CDN management API.
type CDNClient struct {
	apiURL     string
	apiKey     string
	zoneID     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCDNClient creates a CDN maintenance client.
func NewCDNClient(apiURL, apiKey, zoneID string, logger *zap.Logger) (*CDNClient, error) {
	if apiKey == "" || zoneID == "" {
		return nil, ErrCDNNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CDNClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		zoneID:     zoneID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// PurgeURL evicts a single object from the edge cache.
func (c *CDNClient) PurgeURL(ctx context.Context, rawURL string) error {
	u := fmt.Sprintf("%s/purge?url=%s", c.apiURL, url.QueryEscape(rawURL))
	return c.post(ctx, u)
}

// PurgeZone evicts the whole zone from the edge cache.
func (c *CDNClient) PurgeZone(ctx context.Context) error {
	u := fmt.Sprintf("%s/pullzone/%s/purgeCache", c.apiURL, url.PathEscape(c.zoneID))
	return c.post(ctx, u)
}

// Stats returns aggregate usage for the storage zone.
func (c *CDNClient) Stats(ctx context.Context) (ZoneStats, error) {
	u := fmt.Sprintf("%s/storagezone/%s/statistics", c.apiURL, url.PathEscape(c.zoneID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ZoneStats{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("AccessKey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ZoneStats{}, fmt.Errorf("zone stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ZoneStats{}, fmt.Errorf("%w: stats status %d", ErrCDNRequestFailed, resp.StatusCode)
	}
	var stats ZoneStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return ZoneStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

func (c *CDNClient) post(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("AccessKey", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: purge status %d", ErrCDNRequestFailed, resp.StatusCode)
	}
	return nil
}
