package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageStore 透過 S3 API 儲存刊登物品與使用者的圖片
type ImageStore struct {
	// Client 是 S3 客戶端
	Client *s3.Client
	// Bucket 是 S3 存儲桶的名稱
	Bucket string
	// PublicEndpoint 是圖片的公開 Endpoint
	PublicEndpoint *url.URL
}

func NewImageStore(client *s3.Client, bucket, publicBaseURL string) (*ImageStore, error) {
	const op = "NewImageStore"
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &ImageStore{Client: client, Bucket: bucket, PublicEndpoint: publicEndpoint}, nil
}

// UploadImage 上傳圖片並回傳其公開 URL
func (s *ImageStore) UploadImage(ctx context.Context, path, contentType string, content []byte) (string, error) {
	const op = "UploadImage"
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload image to S3, err=%w", op, err)
	}
	uri := *s.PublicEndpoint
	uri.Path = path
	return uri.String(), nil
}

// imageMIMEExtensions 定義了允許上傳的圖片類型及其對應的副檔名
var imageMIMEExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

// ImageExtension 檢查 MIME 類型是否為允許的圖片類型，並回傳對應的副檔名
func ImageExtension(mimeType string) (string, bool) {
	ext, ok := imageMIMEExtensions[mimeType]
	return ext, ok
}
