package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/config"
	"github.com/kurswerk/backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

func newTestVideoService(t *testing.T) (*VideoService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewVideoService(db, config.New()), db
}

func mustImport(t *testing.T, svc *VideoService, req *ImportRequest) *models.VideoAsset {
	t.Helper()
	video, existing, err := svc.Import(req, nil)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if existing {
		t.Fatalf("expected new entry for key %s", req.Key)
	}
	return video
}

// checkUsageInvariant asserts usage_count equals the number of ledger rows
func checkUsageInvariant(t *testing.T, db *gorm.DB, videoID uuid.UUID) {
	t.Helper()
	var video models.VideoAsset
	if err := db.First(&video, "id = ?", videoID).Error; err != nil {
		t.Fatalf("failed to load video: %v", err)
	}
	var rows int64
	if err := db.Model(&models.VideoUsage{}).Where("video_id = ?", videoID).Count(&rows).Error; err != nil {
		t.Fatalf("failed to count usages: %v", err)
	}
	if int64(video.UsageCount) != rows {
		t.Fatalf("usage count invariant broken: count=%d rows=%d", video.UsageCount, rows)
	}
}
