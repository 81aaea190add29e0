package services

import (
	"context"
	"fmt"

	"github.com/kurswerk/backend/internal/models"
	"gorm.io/gorm"
)

// BlobLister lists raw blobs by key prefix (implemented by S3Service)
type BlobLister interface {
	ListVideoBlobs(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// ReconcileService diffs object storage listings against the cataloged key
// set to find blobs that were uploaded but never imported. It is strictly
// read-only on both sides.
type ReconcileService struct {
	db     *gorm.DB
	lister BlobLister
}

func NewReconcileService(db *gorm.DB, lister BlobLister) *ReconcileService {
	return &ReconcileService{db: db, lister: lister}
}

// ReconcileResult partitions a storage listing into blobs that already have
// a catalog entry and blobs that can still be imported.
type ReconcileResult struct {
	Cataloged  []BlobInfo `json:"cataloged"`
	Importable []BlobInfo `json:"importable"`
}

// Diff partitions blobs by membership in catalogedKeys. Pure function, no
// side effects.
func Diff(blobs []BlobInfo, catalogedKeys []string) ReconcileResult {
	known := make(map[string]struct{}, len(catalogedKeys))
	for _, k := range catalogedKeys {
		known[k] = struct{}{}
	}

	result := ReconcileResult{Cataloged: []BlobInfo{}, Importable: []BlobInfo{}}
	for _, b := range blobs {
		if _, ok := known[b.Key]; ok {
			result.Cataloged = append(result.Cataloged, b)
		} else {
			result.Importable = append(result.Importable, b)
		}
	}
	return result
}

// FindUnimported lists the bucket under prefix and diffs it against the
// cataloged keys. Never writes; the catalog stays consistent even when the
// listing fails.
func (s *ReconcileService) FindUnimported(ctx context.Context, prefix string) (*ReconcileResult, error) {
	blobs, err := s.lister.ListVideoBlobs(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := s.db.Model(&models.VideoAsset{}).Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to load cataloged keys: %w", err)
	}

	result := Diff(blobs, keys)
	return &result, nil
}
