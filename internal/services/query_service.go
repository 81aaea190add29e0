package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/models"
	"gorm.io/gorm"
)

// QueryService answers filtered catalog searches plus catalog-wide facet
// aggregation. Read-only and safely concurrent.
type QueryService struct {
	db *gorm.DB
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db}
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// SearchFilters describes one catalog search
type SearchFilters struct {
	Text       string
	Categories []string
	Type       string // "lesson" | "preview" coarse alias
	SortBy     string // uploadDate (default) | title | size | duration | usageCount
	SortOrder  string // asc | desc
	Page       int
	Limit      int

	DurationMin int
	DurationMax int
	SizeMin     int64
	SizeMax     int64

	UploaderRef *uuid.UUID
	DateFrom    *time.Time
	DateTo      *time.Time
}

// Pagination is 1-indexed; TotalPages is ceil(total/limit)
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

// Facets are catalog-wide aggregates, independent of the active filter
type Facets struct {
	Categories  []string `json:"categories"`
	TotalVideos int64    `json:"total_videos"`
	TotalSize   int64    `json:"total_size"`
	TotalUsage  int64    `json:"total_usage"`
	AvgUsage    float64  `json:"avg_usage"`
}

type SearchResult struct {
	Videos     []models.VideoAsset `json:"videos"`
	Pagination Pagination          `json:"pagination"`
	Facets     Facets              `json:"facets"`
}

// typeAliases maps the coarse "type" filter onto category sets
var typeAliases = map[string][]string{
	"lesson":  {"lessonVideo", "lesson"},
	"preview": {"previewVideo", "preview"},
}

var sortColumns = map[string]string{
	"uploadDate": "upload_date",
	"title":      "title",
	"size":       "size_bytes",
	"duration":   "duration",
	"usageCount": "usage_count",
}

// Search runs a filtered, sorted, paginated catalog query and attaches the
// catalog-wide facets
func (s *QueryService) Search(f *SearchFilters) (*SearchResult, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	query := s.db.Model(&models.VideoAsset{})

	if text := strings.TrimSpace(f.Text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ? OR LOWER(original_file_name) LIKE ?",
			like, like, like, like,
		)
	}

	categories := f.Categories
	if alias, ok := typeAliases[f.Type]; ok {
		// never grow into the caller's backing array
		categories = append(append([]string{}, f.Categories...), alias...)
	}
	if cond, args := categoryCondition(categories); cond != "" {
		query = query.Where(cond, args...)
	}

	if f.DurationMin > 0 {
		query = query.Where("duration >= ?", f.DurationMin)
	}
	if f.DurationMax > 0 {
		query = query.Where("duration <= ?", f.DurationMax)
	}
	if f.SizeMin > 0 {
		query = query.Where("size_bytes >= ?", f.SizeMin)
	}
	if f.SizeMax > 0 {
		query = query.Where("size_bytes <= ?", f.SizeMax)
	}
	if f.UploaderRef != nil {
		query = query.Where("uploaded_by_id = ?", *f.UploaderRef)
	}
	if f.DateFrom != nil {
		query = query.Where("upload_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		query = query.Where("upload_date <= ?", *f.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "upload_date"
	}
	// newest first for dates, natural order for everything else
	direction := "ASC"
	if column == "upload_date" {
		direction = "DESC"
	}
	switch strings.ToLower(f.SortOrder) {
	case "asc":
		direction = "ASC"
	case "desc":
		direction = "DESC"
	}

	var videos []models.VideoAsset
	offset := (page - 1) * limit
	if err := query.Order(column + " " + direction).Limit(limit).Offset(offset).Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	facets, err := s.Aggregate()
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Videos: videos,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			Total:       total,
			HasNext:     page < totalPages,
			HasPrev:     page > 1,
		},
		Facets: *facets,
	}, nil
}

// categoryCondition matches entries whose category set intersects the
// requested set. Categories are stored CSV, so each candidate is matched
// against the comma-wrapped column.
func categoryCondition(categories []string) (string, []interface{}) {
	conds := make([]string, 0, len(categories))
	args := make([]interface{}, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		conds = append(conds, "(',' || LOWER(categories) || ',') LIKE ?")
		args = append(args, "%,"+strings.ToLower(c)+",%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return strings.Join(conds, " OR "), args
}

// Aggregate computes the catalog-wide facets by full scan. Fine at the
// catalog sizes we run; revisit as incrementally maintained summaries if the
// catalog grows past that.
func (s *QueryService) Aggregate() (*Facets, error) {
	facets := &Facets{Categories: []string{}}

	type totals struct {
		Count int64
		Size  int64
		Usage int64
	}
	var t totals
	if err := s.db.Model(&models.VideoAsset{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes),0) AS size, COALESCE(SUM(usage_count),0) AS usage").
		Scan(&t).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate catalog: %w", err)
	}
	facets.TotalVideos = t.Count
	facets.TotalSize = t.Size
	facets.TotalUsage = t.Usage
	if t.Count > 0 {
		facets.AvgUsage = float64(t.Usage) / float64(t.Count)
	}

	var csvs []string
	if err := s.db.Model(&models.VideoAsset{}).Where("categories <> ''").Pluck("categories", &csvs).Error; err != nil {
		return nil, fmt.Errorf("failed to collect categories: %w", err)
	}
	seen := map[string]struct{}{}
	for _, csv := range csvs {
		for _, c := range models.SplitCSV(csv) {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				facets.Categories = append(facets.Categories, c)
			}
		}
	}
	sort.Strings(facets.Categories)

	return facets, nil
}
