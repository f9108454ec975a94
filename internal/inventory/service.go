// Package inventory provides read and maintenance operations against the
// durable store: listing, size aggregation, and edge-cache purges. It never
// touches the catalog.
package inventory

import (
	"context"

	"go.uber.org/zap"

	"github.com/demonflare/fallowl/internal/durable"
)

// Lister is the durable-store surface used for listings.
type Lister interface {
	List(ctx context.Context, prefix string) ([]durable.Object, error)
}

// CDN is the optional edge-cache surface. All calls are best-effort.
type CDN interface {
	PurgeURL(ctx context.Context, url string) error
	PurgeZone(ctx context.Context) error
	Stats(ctx context.Context) (durable.ZoneStats, error)
}

// FileInfo describes one stored recording file.
type FileInfo struct {
	Name         string `json:"name"`
	SizeBytes    int64  `json:"size_bytes"`
	LastModified string `json:"last_modified"`
}

// Usage aggregates durable store consumption.
type Usage struct {
	FileCount  int64 `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// Service exposes storage introspection.
type Service struct {
	store  Lister
	cdn    CDN
	logger *zap.Logger
}

// NewService creates an introspection service. cdn may be nil; purges then
// report failure and usage falls back to a listing sum.
func NewService(store Lister, cdn CDN, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cdn: cdn, logger: logger}
}

// ListRecordingFiles lists stored files under prefix. An empty prefix lists
// the whole recordings tree.
func (s *Service) ListRecordingFiles(ctx context.Context, prefix string) ([]FileInfo, error) {
	if prefix == "" {
		prefix = durable.FolderRecordings
	}
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(objects))
	for _, obj := range objects {
		files = append(files, FileInfo{
			Name:         obj.Key,
			SizeBytes:    obj.SizeBytes,
			LastModified: obj.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return files, nil
}

// AggregateUsage returns total file count and bytes. Zone statistics from
// the CDN are preferred; a listing sum is the fallback.
func (s *Service) AggregateUsage(ctx context.Context) (Usage, error) {
	if s.cdn != nil {
		stats, err := s.cdn.Stats(ctx)
		if err == nil {
			return Usage{FileCount: stats.FileCount, TotalBytes: stats.UsedBytes}, nil
		}
		s.logger.Warn("zone stats unavailable, falling back to listing", zap.Error(err))
	}
	objects, err := s.store.List(ctx, durable.FolderRecordings)
	if err != nil {
		return Usage{}, err
	}
	var usage Usage
	for _, obj := range objects {
		usage.FileCount++
		usage.TotalBytes += obj.SizeBytes
	}
	return usage, nil
}

// PurgeCache evicts one URL from the edge cache, or the whole zone when url
// is empty. Best-effort: failures are logged and reported as false.
func (s *Service) PurgeCache(ctx context.Context, url string) bool {
	if s.cdn == nil {
		s.logger.Warn("purge requested but cdn is not configured")
		return false
	}
	var err error
	if url == "" {
		err = s.cdn.PurgeZone(ctx)
	} else {
		err = s.cdn.PurgeURL(ctx, url)
	}
	if err != nil {
		s.logger.Warn("cache purge failed", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
