package services

import (
	"fmt"

	"github.com/kurswerk/backend/internal/config"
	"github.com/kurswerk/backend/internal/models"
	qrcode "github.com/skip2/go-qrcode"
)

type QRService struct {
	cfg *config.Config
}

func NewQRService(cfg *config.Config) *QRService { return &QRService{cfg: cfg} }

// GenerateVideoQR encodes a share link to the video's frontend page as a PNG
func (s *QRService) GenerateVideoQR(video *models.VideoAsset) ([]byte, error) {
	shareURL := fmt.Sprintf("%s/videos/%s", s.cfg.FrontendURL, video.ID)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 512)
	if err != nil {
		return nil, err
	}
	return png, nil
}
