package services

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/config"
	"github.com/kurswerk/backend/internal/models"
	"github.com/kurswerk/backend/pkg/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VideoService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewVideoService(db *gorm.DB, cfg *config.Config) *VideoService {
	return &VideoService{db: db, cfg: cfg}
}

// ImportRequest carries one blob descriptor plus catalog metadata and an
// optional usage context for the first reference.
type ImportRequest struct {
	Key      string `json:"key"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Duration int    `json:"duration"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`

	OriginalFileName string   `json:"original_file_name"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Categories       []string `json:"categories"`
	Tags             []string `json:"tags"`

	// Usage context (optional). CourseID "preview" records a preview access.
	CourseID    string `json:"course_id"`
	CourseTitle string `json:"course_title"`
	ModuleID    string `json:"module_id"`
	ChapterID   string `json:"chapter_id"`
	LessonID    string `json:"lesson_id"`
}

// Import creates a catalog entry for a blob, or resolves to the existing
// entry when the key is already cataloged. A duplicate key is not an error:
// the second call reports existing=true and, when a usage context is given,
// still appends exactly one usage record. The create is a single
// insert-if-absent so two racing imports of the same new key cannot produce
// two entries.
func (s *VideoService) Import(req *ImportRequest, uploadedBy *uuid.UUID) (*models.VideoAsset, bool, error) {
	if req.Key == "" {
		return nil, false, fmt.Errorf("video key is required")
	}

	// Duplicate keys resolve to the existing entry; metadata validation only
	// applies to the create path.
	var found models.VideoAsset
	err := s.db.First(&found, "key = ?", req.Key).Error
	if err == nil {
		return s.resolveExisting(&found, req)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up key: %w", err)
	}

	if req.URL == "" {
		return nil, false, fmt.Errorf("video url is required")
	}
	if req.Size <= 0 {
		return nil, false, fmt.Errorf("video size is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, false, fmt.Errorf("title is required")
	}

	fileName := req.OriginalFileName
	if fileName == "" {
		fileName = path.Base(req.Key)
	}

	video := &models.VideoAsset{
		Key:              req.Key,
		URL:              req.URL,
		SizeBytes:        req.Size,
		Duration:         req.Duration,
		Width:            req.Width,
		Height:           req.Height,
		MimeType:         req.MimeType,
		OriginalFileName: validation.TruncateRunes(fileName, 255),
		Title:            validation.TruncateRunes(validation.SanitizeString(req.Title), models.MaxTitleLength),
		Description:      validation.TruncateRunes(validation.SanitizeString(req.Description), models.MaxDescriptionLength),
		Categories:       models.JoinCSV(req.Categories, models.MaxCategories),
		Tags:             models.JoinCSV(req.Tags, models.MaxTags),
		UploadedByID:     uploadedBy,
	}

	return s.createEntry(video, req)
}

// createEntry runs the insert-if-absent on the unique key and, when a racing
// import of the same key won, resolves to the winning entry instead.
func (s *VideoService) createEntry(video *models.VideoAsset, req *ImportRequest) (*models.VideoAsset, bool, error) {
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(video)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create catalog entry: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// The losing struct already carries the id the hook stamped before
		// the conflicting insert; reload into a fresh value so the key is
		// the only query condition.
		var winner models.VideoAsset
		if err := s.db.First(&winner, "key = ?", video.Key).Error; err != nil {
			return nil, false, fmt.Errorf("failed to load existing entry: %w", err)
		}
		return s.resolveExisting(&winner, req)
	}

	if req.CourseID != "" {
		if _, err := s.AddUsage(video.ID, req.CourseID, req.CourseTitle, req.ModuleID, req.ChapterID, req.LessonID); err != nil {
			return nil, false, err
		}
		// reload so the returned entry carries the fresh count
		if err := s.db.First(video, "id = ?", video.ID).Error; err != nil {
			return nil, false, err
		}
	}

	return video, false, nil
}

// resolveExisting handles the dedup-by-return path: an optional usage append
// on the entry that already owns the key.
func (s *VideoService) resolveExisting(video *models.VideoAsset, req *ImportRequest) (*models.VideoAsset, bool, error) {
	if req.CourseID != "" {
		if _, err := s.AddUsage(video.ID, req.CourseID, req.CourseTitle, req.ModuleID, req.ChapterID, req.LessonID); err != nil {
			return nil, true, err
		}
		if err := s.db.First(video, "id = ?", video.ID).Error; err != nil {
			return nil, true, err
		}
	}
	return video, true, nil
}

// GetByID returns an entry with its usage records
func (s *VideoService) GetByID(id uuid.UUID) (*models.VideoAsset, error) {
	var video models.VideoAsset
	if err := s.db.Preload("Usages", func(db *gorm.DB) *gorm.DB {
		return db.Order("used_at DESC")
	}).First(&video, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// GetByKey returns an entry by its storage key
func (s *VideoService) GetByKey(key string) (*models.VideoAsset, error) {
	var video models.VideoAsset
	if err := s.db.First(&video, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// AddUsage appends a course usage record. The "preview" sentinel never
// reaches a course reference field: it is routed to a preview record
// instead. The count increment is a conditional in-place update, so
// concurrent lesson edits referencing the same asset cannot drift.
func (s *VideoService) AddUsage(videoID uuid.UUID, courseID, courseTitle, moduleID, chapterID, lessonID string) (*models.VideoUsage, error) {
	if courseID == models.PreviewCourseID {
		return s.AddPreviewUsage(videoID, "")
	}
	if courseID == "" {
		return nil, fmt.Errorf("course id is required")
	}

	usage := &models.VideoUsage{
		VideoID:     videoID,
		Kind:        models.UsageKindCourse,
		CourseID:    courseID,
		CourseTitle: validation.TruncateRunes(courseTitle, 255),
		ModuleID:    moduleID,
		ChapterID:   chapterID,
		LessonID:    lessonID,
	}
	if err := s.appendUsage(usage); err != nil {
		return nil, err
	}
	return usage, nil
}

// AddPreviewUsage appends a preview access record
func (s *VideoService) AddPreviewUsage(videoID uuid.UUID, referrer string) (*models.VideoUsage, error) {
	usage := &models.VideoUsage{
		VideoID:  videoID,
		Kind:     models.UsageKindPreview,
		Referrer: validation.TruncateRunes(referrer, 512),
	}
	if err := s.appendUsage(usage); err != nil {
		return nil, err
	}
	return usage, nil
}

// appendUsage inserts the record and increments usage_count by exactly one
// in the same transaction. The increment runs as usage_count = usage_count+1
// inside the database, never read-modify-write.
func (s *VideoService) appendUsage(usage *models.VideoUsage) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.VideoAsset{}).
			Where("id = ?", usage.VideoID).
			UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("failed to increment usage count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Create(usage).Error; err != nil {
			return fmt.Errorf("failed to append usage record: %w", err)
		}
		return nil
	})
}

// UsageStats summarizes the ledger of one entry. Read-only.
type UsageStats struct {
	TotalUsage     int                 `json:"total_usage"`
	CourseCount    int                 `json:"course_count"` // distinct courses, preview excluded
	PreviewCount   int                 `json:"preview_count"`
	RecentCourses  []models.VideoUsage `json:"recent_courses"`
	RecentPreviews []models.VideoUsage `json:"recent_previews"`
}

const recentUsageLimit = 10

// GetUsageStats computes ledger statistics for an entry without mutating it
func (s *VideoService) GetUsageStats(videoID uuid.UUID) (*UsageStats, error) {
	var video models.VideoAsset
	if err := s.db.First(&video, "id = ?", videoID).Error; err != nil {
		return nil, err
	}

	stats := &UsageStats{TotalUsage: video.UsageCount}

	var courseIDs []string
	if err := s.db.Model(&models.VideoUsage{}).
		Where("video_id = ? AND kind = ?", videoID, models.UsageKindCourse).
		Distinct("course_id").Pluck("course_id", &courseIDs).Error; err != nil {
		return nil, err
	}
	stats.CourseCount = len(courseIDs)

	var previewCount int64
	if err := s.db.Model(&models.VideoUsage{}).
		Where("video_id = ? AND kind = ?", videoID, models.UsageKindPreview).
		Count(&previewCount).Error; err != nil {
		return nil, err
	}
	stats.PreviewCount = int(previewCount)

	if err := s.db.Where("video_id = ? AND kind = ?", videoID, models.UsageKindCourse).
		Order("used_at DESC").Limit(recentUsageLimit).Find(&stats.RecentCourses).Error; err != nil {
		return nil, err
	}
	if err := s.db.Where("video_id = ? AND kind = ?", videoID, models.UsageKindPreview).
		Order("used_at DESC").Limit(recentUsageLimit).Find(&stats.RecentPreviews).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// UpdateMetadata edits the descriptive fields of an entry. Nil slices leave
// categories/tags untouched; empty slices clear them.
func (s *VideoService) UpdateMetadata(videoID uuid.UUID, title, description string, categories, tags []string) error {
	updates := map[string]interface{}{}
	if title != "" {
		updates["title"] = validation.TruncateRunes(validation.SanitizeString(title), models.MaxTitleLength)
	}
	if description != "" {
		updates["description"] = validation.TruncateRunes(validation.SanitizeString(description), models.MaxDescriptionLength)
	}
	if categories != nil {
		updates["categories"] = models.JoinCSV(categories, models.MaxCategories)
	}
	if tags != nil {
		updates["tags"] = models.JoinCSV(tags, models.MaxTags)
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.Model(&models.VideoAsset{}).Where("id = ?", videoID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// VideoInUse identifies an entry whose deletion was blocked
type VideoInUse struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// BulkDeleteResult is a partial-success record: callers can distinguish
// "all deleted", "none deletable" and "some deleted, some blocked".
type BulkDeleteResult struct {
	DeletedCount int          `json:"deleted_count"`
	VideosInUse  []VideoInUse `json:"videos_in_use,omitempty"`
}

// BulkDelete deletes each entry iff it has zero usage records, collecting
// in-use entries into the rejection list. Each id is evaluated and acted on
// independently; there is no batch rollback. The underlying blobs are never
// touched.
func (s *VideoService) BulkDelete(ids []uuid.UUID) (*BulkDeleteResult, error) {
	result := &BulkDeleteResult{}

	for _, id := range ids {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var video models.VideoAsset
			if err := tx.First(&video, "id = ?", id).Error; err != nil {
				return err
			}

			// The ledger rows are the source of truth for deletability,
			// not the derived counter.
			var usages int64
			if err := tx.Model(&models.VideoUsage{}).Where("video_id = ?", id).Count(&usages).Error; err != nil {
				return err
			}
			if usages > 0 {
				result.VideosInUse = append(result.VideosInUse, VideoInUse{ID: video.ID, Title: video.Title})
				return nil
			}

			if err := tx.Delete(&video).Error; err != nil {
				return err
			}
			result.DeletedCount++
			return nil
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return result, fmt.Errorf("failed to delete video %s: %w", id, err)
		}
	}

	return result, nil
}
