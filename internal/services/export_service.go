package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/kurswerk/backend/internal/config"
	"github.com/kurswerk/backend/internal/models"
	"gorm.io/gorm"
)

// ExportService renders flat tabular snapshots of the catalog
type ExportService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewExportService(db *gorm.DB, cfg *config.Config) *ExportService {
	return &ExportService{db: db, cfg: cfg}
}

var exportHeader = []string{"Title", "Size", "Duration", "Usage Count", "Categories", "Upload Date"}

func (s *ExportService) snapshot() ([]models.VideoAsset, error) {
	var videos []models.VideoAsset
	if err := s.db.Order("upload_date DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog for export: %w", err)
	}
	return videos, nil
}

func exportRow(v *models.VideoAsset) []string {
	return []string{
		v.Title,
		v.FormattedSize(),
		v.FormattedDuration(),
		strconv.Itoa(v.UsageCount),
		strings.Join(v.CategoryList(), "; "),
		v.UploadDate.Format("2006-01-02 15:04"),
	}
}

// ExportCSV writes the catalog snapshot as CSV
func (s *ExportService) ExportCSV() ([]byte, error) {
	videos, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for i := range videos {
		if err := w.Write(exportRow(&videos[i])); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportPDF renders the catalog snapshot as a landscape A4 table
func (s *ExportService) ExportPDF() ([]byte, error) {
	videos, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, "Video Catalog")
	pdf.Ln(12)

	widths := []float64{90, 25, 25, 25, 70, 35}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range exportHeader {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i := range videos {
		for j, cell := range exportRow(&videos[i]) {
			// keep long titles inside their column
			if len(cell) > 60 {
				cell = cell[:57] + "..."
			}
			pdf.CellFormat(widths[j], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
