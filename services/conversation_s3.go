package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"academianet/apperrors"
	"academianet/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend stores each conversation as conversations/{id}.json. Writes are
// full overwrites; concurrent writers to one id race and the last one wins.
type S3Backend struct {
	client S3API
	bucket string
	now    Clock
}

func NewS3Backend(client S3API, bucket string, now Clock) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, now: clockOrSystem(now)}
}

func (b *S3Backend) Name() string { return "s3" }

func conversationKey(id string) string {
	return "conversations/" + id + ".json"
}

func (b *S3Backend) Load(ctx context.Context, id string) ([]models.Message, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(conversationKey(id)),
	})
	if err != nil {
		if isMissingObject(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", conversationKey(id), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", conversationKey(id), err)
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode %s: %w", conversationKey(id), err)
	}
	return conv.Messages, nil
}

func (b *S3Backend) Save(ctx context.Context, id string, messages []models.Message) error {
	if messages == nil {
		messages = []models.Message{}
	}
	data, err := json.Marshal(models.Conversation{ID: id, Messages: messages, UpdatedAt: b.now().UTC().Truncate(time.Second)})
	if err != nil {
		return err
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(conversationKey(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", conversationKey(id), err)
	}
	return nil
}

func isMissingObject(err error) bool {
	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	return apperrors.AWSCode(err) == "NoSuchKey"
}
