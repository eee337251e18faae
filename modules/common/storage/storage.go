package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/utils"
)

// Backend - 오브젝트 저장소 (Supabase Storage 또는 MinIO)
type Backend interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// Client - Asset Store: WebP 변환 후 업로드하고 공개 URL 반환
type Client struct {
	backend Backend
	quality float32
	convert func([]byte, float32) ([]byte, error)
	now     func() time.Time
	log     *zap.Logger
}

// NewClient - Storage 클라이언트 생성
func NewClient(backend Backend, quality float32, log *zap.Logger) *Client {
	return &Client{
		backend: backend,
		quality: quality,
		convert: utils.ConvertToWebP,
		now:     time.Now,
		log:     log.Named("storage"),
	}
}

// Upload - owner/variation/ratio 경로에 이미지 업로드
// WebP 변환이 실패하면 원본 포맷 그대로 올린다.
func (c *Client) Upload(ctx context.Context, ownerID, variationID string, ratio model.Ratio, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	payload := data
	contentType := "image/webp"
	ext := "webp"

	webpData, err := c.convert(data, c.quality)
	if err != nil {
		c.log.Warn("⚠️ [Storage] WebP conversion failed, uploading original",
			zap.String("variation_id", variationID),
			zap.String("ratio", string(ratio)),
			zap.Error(err))
		contentType = utils.DetectMIMEType(data)
		ext = extension(contentType)
	} else {
		payload = webpData
	}

	path := ObjectPath(ownerID, variationID, ratio, ext, c.now())
	if err := c.backend.Put(ctx, path, payload, contentType); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", path, err)
	}

	url := c.backend.PublicURL(path)
	c.log.Info("✅ [Storage] Image uploaded",
		zap.String("variation_id", variationID),
		zap.String("ratio", string(ratio)),
		zap.Int("bytes", len(payload)),
		zap.String("path", path))
	return url, nil
}

// ObjectPath - {owner}/{variation}/{ratio}_{timestamp}.{ext}
func ObjectPath(ownerID, variationID string, ratio model.Ratio, ext string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s_%d.%s", ownerID, variationID, ratio.Name(), at.UnixMilli(), ext)
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "png"
}
