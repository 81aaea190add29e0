package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/middleware"
	"github.com/kurswerk/backend/internal/models"
	"github.com/kurswerk/backend/internal/services"
	"gorm.io/gorm"
)

type VideoHandler struct {
	videoService     *services.VideoService
	queryService     *services.QueryService
	reconcileService *services.ReconcileService
	exportService    *services.ExportService
	qrService        *services.QRService
	auditService     *services.AuditService
}

func NewVideoHandler(videoService *services.VideoService, queryService *services.QueryService, reconcileService *services.ReconcileService, exportService *services.ExportService, qrService *services.QRService, auditService *services.AuditService) *VideoHandler {
	return &VideoHandler{
		videoService:     videoService,
		queryService:     queryService,
		reconcileService: reconcileService,
		exportService:    exportService,
		qrService:        qrService,
		auditService:     auditService,
	}
}

// audit records an admin action when the caller is known
func (h *VideoHandler) audit(c *gin.Context, action, targetID string, details map[string]interface{}) {
	if callerID, ok := middleware.CallerID(c); ok {
		h.auditService.LogAction(callerID, action, "video", targetID, details, c.ClientIP())
	}
}

// videoJSON renders a catalog entry in the wire format
func videoJSON(v *models.VideoAsset) gin.H {
	out := gin.H{
		"id": v.ID,
		"video": gin.H{
			"key":      v.Key,
			"url":      v.URL,
			"size":     v.SizeBytes,
			"duration": v.Duration,
			"width":    v.Width,
			"height":   v.Height,
		},
		"title":             v.Title,
		"description":       v.Description,
		"categories":        v.CategoryList(),
		"tags":              v.TagList(),
		"originalFileName":  v.OriginalFileName,
		"mimeType":          v.MimeType,
		"uploadDate":        v.UploadDate,
		"usageCount":        v.UsageCount,
		"isPublic":          v.IsPublic,
		"formattedSize":     v.FormattedSize(),
		"formattedDuration": v.FormattedDuration(),
	}
	if v.UploadedByID != nil {
		out["uploadedBy"] = *v.UploadedByID
	}
	return out
}

// usageJSON renders one usage record. Preview records always render the
// literal "preview" as the course reference.
func usageJSON(u *models.VideoUsage) gin.H {
	if u.Kind == models.UsageKindPreview {
		out := gin.H{
			"kind":       string(u.Kind),
			"courseId":   u.DisplayCourseID(),
			"accessedAt": u.UsedAt,
		}
		if u.Referrer != "" {
			out["referrer"] = u.Referrer
		}
		return out
	}
	out := gin.H{
		"kind":        string(u.Kind),
		"courseId":    u.DisplayCourseID(),
		"courseTitle": u.CourseTitle,
		"usedAt":      u.UsedAt,
	}
	if u.ModuleID != "" {
		out["moduleId"] = u.ModuleID
	}
	if u.ChapterID != "" {
		out["chapterId"] = u.ChapterID
	}
	if u.LessonID != "" {
		out["lessonId"] = u.LessonID
	}
	return out
}

// SearchVideos runs a filtered catalog search
// GET /admin/videos?page=1&limit=20&search=&categories=a,b&sortBy=&sortOrder=&mineOnly=&type=
func (h *VideoHandler) SearchVideos(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filters := &services.SearchFilters{
		Text:      c.Query("search"),
		Type:      c.Query("type"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Page:      page,
		Limit:     limit,
	}
	if csv := c.Query("categories"); csv != "" {
		filters.Categories = models.SplitCSV(csv)
	}
	if v, err := strconv.Atoi(c.Query("durationMin")); err == nil {
		filters.DurationMin = v
	}
	if v, err := strconv.Atoi(c.Query("durationMax")); err == nil {
		filters.DurationMax = v
	}
	if v, err := strconv.ParseInt(c.Query("sizeMin"), 10, 64); err == nil {
		filters.SizeMin = v
	}
	if v, err := strconv.ParseInt(c.Query("sizeMax"), 10, 64); err == nil {
		filters.SizeMax = v
	}
	if v := c.Query("uploader"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filters.UploaderRef = &id
		}
	}
	if v := c.Query("dateFrom"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.DateFrom = &t
		}
	}
	if v := c.Query("dateTo"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.DateTo = &t
		}
	}
	if c.Query("mineOnly") == "true" {
		if callerID, ok := middleware.CallerID(c); ok {
			filters.UploaderRef = &callerID
		}
	}

	result, err := h.queryService.Search(filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search videos"})
		return
	}

	videos := make([]gin.H, len(result.Videos))
	for i := range result.Videos {
		videos[i] = videoJSON(&result.Videos[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"pagination": gin.H{
			"currentPage": result.Pagination.CurrentPage,
			"totalPages":  result.Pagination.TotalPages,
			"total":       result.Pagination.Total,
			"hasNext":     result.Pagination.HasNext,
			"hasPrev":     result.Pagination.HasPrev,
		},
		"filters": gin.H{
			"categories":         result.Facets.Categories,
			"totalVideos":        result.Facets.TotalVideos,
			"totalSize":          result.Facets.TotalSize,
			"formattedTotalSize": models.FormatBytes(result.Facets.TotalSize),
			"usageStats": gin.H{
				"totalUsage": result.Facets.TotalUsage,
				"avgUsage":   result.Facets.AvgUsage,
			},
		},
	})
}

// GetVideo returns one entry with its usage records and ledger stats
// GET /admin/videos/:id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video ID"})
		return
	}

	video, err := h.videoService.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	stats, err := h.videoService.GetUsageStats(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage stats"})
		return
	}

	usages := make([]gin.H, len(video.Usages))
	for i := range video.Usages {
		usages[i] = usageJSON(&video.Usages[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"video":  videoJSON(video),
		"usages": usages,
		"usageStats": gin.H{
			"totalUsage":   stats.TotalUsage,
			"courseCount":  stats.CourseCount,
			"previewCount": stats.PreviewCount,
		},
	})
}

type importVideoRequest struct {
	Video struct {
		Key      string `json:"key"`
		URL      string `json:"url"`
		Size     int64  `json:"size"`
		Duration int    `json:"duration"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		MimeType string `json:"mimeType"`
	} `json:"video"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	CourseID    string   `json:"courseId"`
	CourseTitle string   `json:"courseTitle"`
	ModuleID    string   `json:"moduleId"`
	ChapterID   string   `json:"chapterId"`
	LessonID    string   `json:"lessonId"`
}

// ImportVideo creates-or-finds a catalog entry for a storage blob
// POST /admin/videos/import
func (h *VideoHandler) ImportVideo(c *gin.Context) {
	var req importVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var uploadedBy *uuid.UUID
	if callerID, ok := middleware.CallerID(c); ok {
		uploadedBy = &callerID
	}

	video, existing, err := h.videoService.Import(&services.ImportRequest{
		Key:         req.Video.Key,
		URL:         req.Video.URL,
		Size:        req.Video.Size,
		Duration:    req.Video.Duration,
		Width:       req.Video.Width,
		Height:      req.Video.Height,
		MimeType:    req.Video.MimeType,
		Title:       req.Title,
		Description: req.Description,
		Categories:  req.Categories,
		Tags:        req.Tags,
		CourseID:    req.CourseID,
		CourseTitle: req.CourseTitle,
		ModuleID:    req.ModuleID,
		ChapterID:   req.ChapterID,
		LessonID:    req.LessonID,
	}, uploadedBy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	message := "video imported"
	status := http.StatusCreated
	if existing {
		message = "video already cataloged"
		status = http.StatusOK
	} else {
		h.audit(c, "import_video", video.ID.String(), map[string]interface{}{"key": video.Key})
	}

	c.JSON(status, gin.H{
		"success":  true,
		"message":  message,
		"video":    videoJSON(video),
		"existing": existing,
	})
}

type addUsageRequest struct {
	CourseID    string `json:"courseId"`
	CourseTitle string `json:"courseTitle"`
	ModuleID    string `json:"moduleId"`
	ChapterID   string `json:"chapterId"`
	LessonID    string `json:"lessonId"`
	Referrer    string `json:"referrer"`
}

// AddUsage appends one usage record to the ledger
// POST /admin/videos/:id/usage
func (h *VideoHandler) AddUsage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video ID"})
		return
	}

	var req addUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var usage *models.VideoUsage
	if req.CourseID == models.PreviewCourseID {
		usage, err = h.videoService.AddPreviewUsage(id, req.Referrer)
	} else {
		usage, err = h.videoService.AddUsage(id, req.CourseID, req.CourseTitle, req.ModuleID, req.ChapterID, req.LessonID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.audit(c, "add_video_usage", id.String(), map[string]interface{}{"courseId": usage.DisplayCourseID()})
	c.JSON(http.StatusCreated, gin.H{"message": "usage recorded", "usage": usageJSON(usage)})
}

type updateMetadataRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
}

// UpdateMetadata edits title, description, categories and tags
// PUT /admin/videos/:id/metadata
func (h *VideoHandler) UpdateMetadata(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video ID"})
		return
	}

	var req updateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.videoService.UpdateMetadata(id, req.Title, req.Description, req.Categories, req.Tags); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.audit(c, "update_video_metadata", id.String(), nil)
	c.JSON(http.StatusOK, gin.H{"message": "metadata updated successfully"})
}

type bulkDeleteRequest struct {
	VideoIDs []string `json:"videoIds" binding:"required"`
}

// BulkDelete deletes the given entries where no usage records exist,
// reporting partial success
// POST /admin/videos/bulk-delete
func (h *VideoHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "videoIds is required"})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.VideoIDs))
	for _, raw := range req.VideoIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("invalid video ID: %s", raw)})
			return
		}
		ids = append(ids, id)
	}

	result, err := h.videoService.BulkDelete(ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "bulk delete failed"})
		return
	}

	if result.DeletedCount > 0 {
		h.audit(c, "bulk_delete_videos", "", map[string]interface{}{
			"requested": len(ids),
			"deleted":   result.DeletedCount,
		})
	}

	resp := gin.H{
		"success":      true,
		"deletedCount": result.DeletedCount,
	}
	if len(result.VideosInUse) > 0 {
		inUse := make([]gin.H, len(result.VideosInUse))
		for i, v := range result.VideosInUse {
			inUse[i] = gin.H{"id": v.ID, "title": v.Title}
		}
		resp["videosInUse"] = inUse
		if result.DeletedCount == 0 {
			resp["success"] = false
			resp["error"] = "no videos deleted; all requested videos are in use"
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Reconcile lists blobs under the prefix that have no catalog entry yet
// GET /admin/videos/reconcile?prefix=courses/
func (h *VideoHandler) Reconcile(c *gin.Context) {
	prefix := c.DefaultQuery("prefix", "")

	result, err := h.reconcileService.FindUnimported(c.Request.Context(), prefix)
	if err != nil {
		// listing failures are retryable infrastructure errors
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to list object storage", "retryable": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cataloged":  len(result.Cataloged),
		"importable": result.Importable,
	})
}

// ExportCSV streams the catalog snapshot as CSV
// GET /admin/videos/export.csv
func (h *VideoHandler) ExportCSV(c *gin.Context) {
	data, err := h.exportService.ExportCSV()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export catalog"})
		return
	}

	filename := "video-catalog-" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF streams the catalog snapshot as PDF
// GET /admin/videos/export.pdf
func (h *VideoHandler) ExportPDF(c *gin.Context) {
	data, err := h.exportService.ExportPDF()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export catalog"})
		return
	}

	filename := "video-catalog-" + time.Now().Format("2006-01-02") + ".pdf"
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, "application/pdf", data)
}

// GetVideoQR returns a share QR code for the video page
// GET /admin/videos/:id/qr.png
func (h *VideoHandler) GetVideoQR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video ID"})
		return
	}

	video, err := h.videoService.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
		return
	}

	png, err := h.qrService.GenerateVideoQR(video)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate QR code"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
