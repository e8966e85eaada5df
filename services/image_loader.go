package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"academianet/apperrors"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageRef points at an image object. An empty Bucket means the loader's default.
type ImageRef struct {
	Bucket string `json:"bucket,omitempty"`
	Key    string `json:"key"`
}

// ImageLoader reads per-request image attachments.
type ImageLoader struct {
	s3            S3API
	defaultBucket string
}

func NewImageLoader(client S3API, defaultBucket string) *ImageLoader {
	return &ImageLoader{s3: client, defaultBucket: defaultBucket}
}

func (l *ImageLoader) FromS3(ctx context.Context, ref ImageRef) (*models.ImageAttachment, error) {
	bucket := ref.Bucket
	if bucket == "" {
		bucket = l.defaultBucket
	}
	if bucket == "" || ref.Key == "" {
		return nil, apperrors.Validation("la imagen requiere bucket y key")
	}
	if l.s3 == nil {
		return nil, apperrors.New(apperrors.KindSourceUnavailable, "almacenamiento de imágenes no configurado")
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(ref.Key)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, err,
			fmt.Sprintf("Failed to read S3 image s3://%s/%s", bucket, ref.Key))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, err, "Failed to read S3 image")
	}
	return &models.ImageAttachment{Format: models.ImageFormatJPEG, Bytes: data}, nil
}

// LoadLocalImage reads an image from disk; used by the CLI.
func LoadLocalImage(path string) (*models.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSourceUnavailable, err, "Failed to read local image")
	}
	return &models.ImageAttachment{Format: models.ImageFormatJPEG, Bytes: data}, nil
}
