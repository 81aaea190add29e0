package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// PreviewCourseID is the caller-facing sentinel for non-course usage.
	// It is routed to a preview usage record and never stored in CourseID.
	PreviewCourseID = "preview"

	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxCategories        = 10
	MaxTags              = 20
)

type UsageKind string

const (
	UsageKindCourse  UsageKind = "course"
	UsageKindPreview UsageKind = "preview"
)

// VideoAsset represents one reusable video in the catalog.
// The storage blob itself is owned by the object storage tier; the catalog
// never mutates or deletes it.
type VideoAsset struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	Key       string `gorm:"size:512;uniqueIndex;not null" json:"key"` // storage path
	URL       string `gorm:"size:1024;not null" json:"url"`
	SizeBytes int64  `gorm:"not null" json:"size_bytes"`
	Duration  int    `gorm:"default:0" json:"duration"` // seconds, 0 = unknown
	Width     int    `gorm:"default:0" json:"width"`
	Height    int    `gorm:"default:0" json:"height"`

	OriginalFileName string `gorm:"size:255" json:"original_file_name"`
	MimeType         string `gorm:"size:120" json:"mime_type"`

	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"size:1000" json:"description"`
	Categories  string `gorm:"size:512" json:"categories"` // CSV, max 10 entries
	Tags        string `gorm:"size:1024" json:"tags"`      // CSV, max 20 entries

	UploadedByID *uuid.UUID `gorm:"type:uuid" json:"uploaded_by,omitempty"` // weak reference
	UploadDate   time.Time  `json:"upload_date"`

	// Derived: always equals the number of VideoUsage rows for this asset.
	UsageCount int  `gorm:"default:0;not null" json:"usage_count"`
	IsPublic   bool `gorm:"default:true" json:"is_public"`

	// Optional technical metadata
	Resolution string  `gorm:"size:32" json:"resolution,omitempty"`
	Format     string  `gorm:"size:32" json:"format,omitempty"`
	Bitrate    int     `gorm:"default:0" json:"bitrate,omitempty"`
	FrameRate  float64 `gorm:"default:0" json:"frame_rate,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Usages []VideoUsage `gorm:"foreignKey:VideoID;constraint:OnDelete:CASCADE" json:"usages,omitempty"`
}

func (v *VideoAsset) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.UploadDate.IsZero() {
		v.UploadDate = time.Now().UTC()
	}
	return nil
}

// CategoryList splits the CSV categories column into a slice
func (v *VideoAsset) CategoryList() []string {
	return SplitCSV(v.Categories)
}

// TagList splits the CSV tags column into a slice
func (v *VideoAsset) TagList() []string {
	return SplitCSV(v.Tags)
}

// FormattedSize renders the byte size for display (not stored)
func (v *VideoAsset) FormattedSize() string {
	return FormatBytes(v.SizeBytes)
}

// FormattedDuration renders the duration as mm:ss / hh:mm:ss (not stored)
func (v *VideoAsset) FormattedDuration() string {
	return FormatDuration(v.Duration)
}

// VideoUsage is one append-only usage record. Course and preview usage share
// the table, distinguished by Kind; preview rows never carry a course
// reference.
type VideoUsage struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID uuid.UUID `gorm:"type:uuid;not null;index" json:"video_id"`

	Kind UsageKind `gorm:"size:16;not null;index" json:"kind"`

	// Course usage: weak references by identifier plus a title snapshot.
	// The referenced course is never embedded; if it is deleted elsewhere
	// the record stays as a dangling reference with the snapshot intact.
	CourseID    string `gorm:"size:64" json:"course_id,omitempty"`
	CourseTitle string `gorm:"size:255" json:"course_title,omitempty"`
	ModuleID    string `gorm:"size:64" json:"module_id,omitempty"`
	ChapterID   string `gorm:"size:64" json:"chapter_id,omitempty"`
	LessonID    string `gorm:"size:64" json:"lesson_id,omitempty"`

	// Preview usage
	Referrer string `gorm:"size:512" json:"referrer,omitempty"`

	UsedAt    time.Time `gorm:"not null;index" json:"used_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *VideoUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.UsedAt.IsZero() {
		u.UsedAt = time.Now().UTC()
	}
	return nil
}

// DisplayCourseID is what callers see as the course reference. Preview
// records always render the literal "preview".
func (u *VideoUsage) DisplayCourseID() string {
	if u.Kind == UsageKindPreview {
		return PreviewCourseID
	}
	return u.CourseID
}

// SplitCSV splits a CSV column into trimmed, non-empty entries
func SplitCSV(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinCSV joins entries into the CSV column format, dropping empties and
// capping at max entries
func JoinCSV(entries []string, max int) string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		out = append(out, e)
		if len(out) == max {
			break
		}
	}
	return strings.Join(out, ",")
}

// FormatBytes renders a byte count as a human readable size
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatDuration renders seconds as mm:ss, or hh:mm:ss from one hour up
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
