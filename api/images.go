package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "furima/adapters/s3"
	"furima/models"
)

const maxImageSize = 5 << 20

// Upload an image ahead of item creation
// (POST /api/images)
func (impl *ServerImpl) UploadImage(c *gin.Context) {
	const op = "UploadImage"
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	// 以每小時的上傳數量限制濫用
	if limit := impl.config.S3.RateLimitPerHour; limit > 0 {
		var count int64
		result := impl.db.Model(&models.Image{}).
			Where("uploader_id = ? AND created_at > ?", userID, time.Now().Add(-time.Hour)).
			Count(&count)
		if result.Error != nil {
			serverError(c, fmt.Errorf("[%s] Fail to count recent uploads, err=%w", op, result.Error))
			return
		}
		if count >= limit {
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "upload limit reached, try again later"})
			return
		}
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		validationError(c, map[string]string{"image": "this field is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(internalS3.NewLimitReader(file, maxImageSize))
	if limitErr := internalS3.ErrReachLimitType; errors.As(err, &limitErr) {
		validationError(c, map[string]string{"image": fmt.Sprintf("image exceeds the size limit of %s", internalS3.FormatBytes(limitErr.MaxBytes))})
		return
	}
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to read uploaded image, err=%w", op, err))
		return
	}

	contentType := http.DetectContentType(content)
	extension, ok := internalS3.ImageExtension(contentType)
	if !ok {
		validationError(c, map[string]string{"image": fmt.Sprintf("unsupported image type %s", contentType)})
		return
	}

	tempID := uuid.New()
	path := fmt.Sprintf("images/%s.%s", tempID, extension)
	url, err := impl.imageStore.UploadImage(c.Request.Context(), path, contentType, content)
	if err != nil {
		serverError(c, fmt.Errorf("[%s] Fail to upload image, err=%w", op, err))
		return
	}

	image := models.Image{
		UploaderID: userID,
		URL:        url,
		TempID:     tempID,
	}
	if result := impl.db.Create(&image); result.Error != nil {
		serverError(c, fmt.Errorf("[%s] Fail to save image record, err=%w", op, result.Error))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"temp_id": tempID, "url": url})
}
