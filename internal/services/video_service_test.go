package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/models"
	"gorm.io/gorm"
)

func lessonImport(key string) *ImportRequest {
	return &ImportRequest{
		Key:        key,
		URL:        "https://storage.example.com/" + key,
		Size:       1048576,
		Title:      "Intro",
		Categories: []string{"lessonVideo"},
	}
}

func TestImportCreatesEntry(t *testing.T) {
	svc, db := newTestVideoService(t)

	video := mustImport(t, svc, lessonImport("courses/lessonVideos/intro.mp4"))

	if video.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if video.UsageCount != 0 {
		t.Fatalf("expected usage count 0, got %d", video.UsageCount)
	}
	if video.OriginalFileName != "intro.mp4" {
		t.Fatalf("expected file name derived from key, got %q", video.OriginalFileName)
	}
	if !video.IsPublic {
		t.Fatalf("expected is_public default true")
	}
	checkUsageInvariant(t, db, video.ID)
}

func TestImportValidation(t *testing.T) {
	svc, db := newTestVideoService(t)

	cases := []*ImportRequest{
		{URL: "https://x", Size: 1, Title: "t"},              // missing key
		{Key: "k1", Size: 1, Title: "t"},                     // missing url
		{Key: "k2", URL: "https://x", Title: "t"},            // missing size
		{Key: "k3", URL: "https://x", Size: 1},               // missing title
		{Key: "k4", URL: "https://x", Size: 1, Title: "   "}, // blank title
	}
	for _, req := range cases {
		if _, _, err := svc.Import(req, nil); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}

	// validation failures leave no state behind
	var count int64
	if err := db.Model(&models.VideoAsset{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty catalog after rejected imports, got %d", count)
	}
}

func TestImportTruncatesBoundedFields(t *testing.T) {
	svc, _ := newTestVideoService(t)

	req := lessonImport("courses/long.mp4")
	req.Title = strings.Repeat("t", 300)
	req.Description = strings.Repeat("d", 2000)
	for i := 0; i < 15; i++ {
		req.Categories = append(req.Categories, "cat"+strings.Repeat("x", i))
	}

	video := mustImport(t, svc, req)

	if got := len([]rune(video.Title)); got != models.MaxTitleLength {
		t.Fatalf("expected title truncated to %d, got %d", models.MaxTitleLength, got)
	}
	if got := len([]rune(video.Description)); got != models.MaxDescriptionLength {
		t.Fatalf("expected description truncated to %d, got %d", models.MaxDescriptionLength, got)
	}
	if got := len(video.CategoryList()); got != models.MaxCategories {
		t.Fatalf("expected categories capped at %d, got %d", models.MaxCategories, got)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	svc, db := newTestVideoService(t)

	first := mustImport(t, svc, lessonImport("courses/dup.mp4"))

	// second import of the same key resolves to the entry, never errors
	second, existing, err := svc.Import(lessonImport("courses/dup.mp4"), nil)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !existing {
		t.Fatalf("expected existing=true on re-import")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same entry, got %s and %s", first.ID, second.ID)
	}

	var count int64
	db.Model(&models.VideoAsset{}).Where("key = ?", "courses/dup.mp4").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one entry, got %d", count)
	}
}

func TestImportWithUsageContextCountsPerCall(t *testing.T) {
	svc, db := newTestVideoService(t)

	req := lessonImport("courses/used.mp4")
	req.CourseID = "C1"
	req.CourseTitle = "Sewing 101"

	video, existing, err := svc.Import(req, nil)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if existing || video.UsageCount != 1 {
		t.Fatalf("expected new entry with usage count 1, got existing=%v count=%d", existing, video.UsageCount)
	}

	video, existing, err = svc.Import(req, nil)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !existing || video.UsageCount != 2 {
		t.Fatalf("expected existing entry with usage count 2, got existing=%v count=%d", existing, video.UsageCount)
	}
	checkUsageInvariant(t, db, video.ID)
}

func TestImportReImportDoesNotOverwriteMetadata(t *testing.T) {
	svc, _ := newTestVideoService(t)

	first := mustImport(t, svc, lessonImport("courses/meta.mp4"))

	req := lessonImport("courses/meta.mp4")
	req.Title = "Other Title"
	second, _, err := svc.Import(req, nil)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if second.Title != first.Title {
		t.Fatalf("re-import must not overwrite title: %q", second.Title)
	}
}

func TestPreviewSentinelRoutesToPreviewUsage(t *testing.T) {
	svc, db := newTestVideoService(t)

	video := mustImport(t, svc, lessonImport("courses/preview.mp4"))

	usage, err := svc.AddUsage(video.ID, models.PreviewCourseID, "", "", "", "")
	if err != nil {
		t.Fatalf("add usage failed: %v", err)
	}
	if usage.Kind != models.UsageKindPreview {
		t.Fatalf("expected preview usage, got %s", usage.Kind)
	}
	// the sentinel never leaks into the course reference field
	if usage.CourseID != "" {
		t.Fatalf("expected empty course reference, got %q", usage.CourseID)
	}
	if usage.DisplayCourseID() != "preview" {
		t.Fatalf("expected display course id \"preview\", got %q", usage.DisplayCourseID())
	}
	checkUsageInvariant(t, db, video.ID)
}

func TestAddUsageRequiresCourse(t *testing.T) {
	svc, _ := newTestVideoService(t)
	video := mustImport(t, svc, lessonImport("courses/nocourse.mp4"))

	if _, err := svc.AddUsage(video.ID, "", "", "", "", ""); err == nil {
		t.Fatalf("expected error for empty course id")
	}
}

func TestAddUsageUnknownVideo(t *testing.T) {
	svc, _ := newTestVideoService(t)

	_, err := svc.AddUsage(uuid.New(), "C1", "Course", "", "", "")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestUsageInvariantAfterEveryMutation(t *testing.T) {
	svc, db := newTestVideoService(t)
	video := mustImport(t, svc, lessonImport("courses/inv.mp4"))

	for i := 0; i < 3; i++ {
		if _, err := svc.AddUsage(video.ID, "C1", "Sewing 101", "M1", "", "L1"); err != nil {
			t.Fatalf("add usage failed: %v", err)
		}
		checkUsageInvariant(t, db, video.ID)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.AddPreviewUsage(video.ID, "https://kurswerk.de/preview"); err != nil {
			t.Fatalf("add preview usage failed: %v", err)
		}
		checkUsageInvariant(t, db, video.ID)
	}

	var reloaded models.VideoAsset
	if err := db.First(&reloaded, "id = ?", video.ID).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.UsageCount != 5 {
		t.Fatalf("expected usage count 5, got %d", reloaded.UsageCount)
	}
}

func TestGetUsageStats(t *testing.T) {
	svc, _ := newTestVideoService(t)
	video := mustImport(t, svc, lessonImport("courses/stats.mp4"))

	// two lessons in the same course, one in another, two previews
	svcMust := func(courseID, lessonID string) {
		if _, err := svc.AddUsage(video.ID, courseID, "Course "+courseID, "", "", lessonID); err != nil {
			t.Fatalf("add usage failed: %v", err)
		}
	}
	svcMust("C1", "L1")
	svcMust("C1", "L2")
	svcMust("C2", "L1")
	for i := 0; i < 2; i++ {
		if _, err := svc.AddPreviewUsage(video.ID, ""); err != nil {
			t.Fatalf("add preview usage failed: %v", err)
		}
	}

	stats, err := svc.GetUsageStats(video.ID)
	if err != nil {
		t.Fatalf("get usage stats failed: %v", err)
	}
	if stats.TotalUsage != 5 {
		t.Fatalf("expected total usage 5, got %d", stats.TotalUsage)
	}
	if stats.CourseCount != 2 {
		t.Fatalf("expected 2 distinct courses (preview excluded), got %d", stats.CourseCount)
	}
	if stats.PreviewCount != 2 {
		t.Fatalf("expected 2 preview accesses, got %d", stats.PreviewCount)
	}
	if len(stats.RecentCourses) != 3 || len(stats.RecentPreviews) != 2 {
		t.Fatalf("unexpected recent lists: %d courses, %d previews", len(stats.RecentCourses), len(stats.RecentPreviews))
	}
}

func TestBulkDeletePartialSuccess(t *testing.T) {
	svc, db := newTestVideoService(t)

	unused := mustImport(t, svc, lessonImport("courses/unused.mp4"))
	inUse := mustImport(t, svc, lessonImport("courses/inuse.mp4"))
	if _, err := svc.AddUsage(inUse.ID, "C1", "Sewing 101", "", "", ""); err != nil {
		t.Fatalf("add usage failed: %v", err)
	}

	result, err := svc.BulkDelete([]uuid.UUID{unused.ID, inUse.ID})
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected 1 deleted, got %d", result.DeletedCount)
	}
	if len(result.VideosInUse) != 1 || result.VideosInUse[0].ID != inUse.ID || result.VideosInUse[0].Title != "Intro" {
		t.Fatalf("unexpected rejection list: %+v", result.VideosInUse)
	}

	var count int64
	db.Model(&models.VideoAsset{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", count)
	}
}

func TestBulkDeleteNoneDeletable(t *testing.T) {
	svc, _ := newTestVideoService(t)

	inUse := mustImport(t, svc, lessonImport("courses/blocked.mp4"))
	if _, err := svc.AddPreviewUsage(inUse.ID, ""); err != nil {
		t.Fatalf("add preview usage failed: %v", err)
	}

	result, err := svc.BulkDelete([]uuid.UUID{inUse.ID})
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if result.DeletedCount != 0 || len(result.VideosInUse) != 1 {
		t.Fatalf("expected none deletable, got %+v", result)
	}
}

func TestBulkDeleteSkipsUnknownIDs(t *testing.T) {
	svc, _ := newTestVideoService(t)

	result, err := svc.BulkDelete([]uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if result.DeletedCount != 0 || len(result.VideosInUse) != 0 {
		t.Fatalf("expected empty result for unknown id, got %+v", result)
	}
}

func TestUpdateMetadata(t *testing.T) {
	svc, db := newTestVideoService(t)
	video := mustImport(t, svc, lessonImport("courses/edit.mp4"))

	err := svc.UpdateMetadata(video.ID, "New Title", "New description", []string{"lesson", "featured"}, []string{"sewing"})
	if err != nil {
		t.Fatalf("update metadata failed: %v", err)
	}

	var reloaded models.VideoAsset
	if err := db.First(&reloaded, "id = ?", video.ID).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Title != "New Title" {
		t.Fatalf("expected updated title, got %q", reloaded.Title)
	}
	if got := reloaded.CategoryList(); len(got) != 2 || got[0] != "lesson" {
		t.Fatalf("unexpected categories: %v", got)
	}

	if err := svc.UpdateMetadata(uuid.New(), "x", "", nil, nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

// Full lifecycle: import, course usage, preview re-import, blocked delete
func TestLessonVideoLifecycle(t *testing.T) {
	svc, db := newTestVideoService(t)

	video := mustImport(t, svc, &ImportRequest{
		Key:   "courses/lessonVideos/intro.mp4",
		URL:   "https://storage.example.com/courses/lessonVideos/intro.mp4",
		Size:  1048576,
		Title: "Intro",
	})
	if video.UsageCount != 0 {
		t.Fatalf("expected fresh entry with zero usage")
	}

	if _, err := svc.AddUsage(video.ID, "C1", "Sewing 101", "", "", ""); err != nil {
		t.Fatalf("add usage failed: %v", err)
	}

	req := &ImportRequest{
		Key:      "courses/lessonVideos/intro.mp4",
		URL:      "https://storage.example.com/courses/lessonVideos/intro.mp4",
		Size:     1048576,
		Title:    "Intro",
		CourseID: models.PreviewCourseID,
	}
	reimported, existing, err := svc.Import(req, nil)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if !existing || reimported.UsageCount != 2 {
		t.Fatalf("expected existing entry with usage count 2, got existing=%v count=%d", existing, reimported.UsageCount)
	}

	var previews int64
	db.Model(&models.VideoUsage{}).Where("video_id = ? AND kind = ?", video.ID, models.UsageKindPreview).Count(&previews)
	if previews != 1 {
		t.Fatalf("expected one preview usage, got %d", previews)
	}

	result, err := svc.BulkDelete([]uuid.UUID{video.ID})
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if result.DeletedCount != 0 || len(result.VideosInUse) != 1 || result.VideosInUse[0].Title != "Intro" {
		t.Fatalf("expected delete blocked for in-use video, got %+v", result)
	}
}

// Replays the insert-conflict branch: a second importer that passed the
// initial lookup before the first committed must resolve to the winning
// entry, not error out.
func TestImportConflictResolvesToWinner(t *testing.T) {
	svc, db := newTestVideoService(t)

	winner := mustImport(t, svc, lessonImport("courses/race.mp4"))

	req := lessonImport("courses/race.mp4")
	req.CourseID = "C1"
	req.CourseTitle = "Sewing 101"
	loser := &models.VideoAsset{
		Key:       req.Key,
		URL:       req.URL,
		SizeBytes: req.Size,
		Title:     req.Title,
	}

	resolved, existing, err := svc.createEntry(loser, req)
	if err != nil {
		t.Fatalf("conflicting import failed to resolve: %v", err)
	}
	if !existing {
		t.Fatalf("expected existing=true after lost insert race")
	}
	if resolved.ID != winner.ID {
		t.Fatalf("expected winner's entry %s, got %s", winner.ID, resolved.ID)
	}
	if resolved.UsageCount != 1 {
		t.Fatalf("expected usage context appended to winner, got count %d", resolved.UsageCount)
	}

	var count int64
	db.Model(&models.VideoAsset{}).Where("key = ?", req.Key).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one entry, got %d", count)
	}
	checkUsageInvariant(t, db, winner.ID)
}
