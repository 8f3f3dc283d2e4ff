package archive

import (
	"bytes"
	"context"
	"fmt"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Saver uploads book archives to an S3 bucket under books/.
type S3Saver struct {
	client   *s3.Client
	bucket   string
	password string
}

func NewS3Saver(ctx context.Context, bucket, password string) (*S3Saver, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Saver{client: s3.NewFromConfig(cfg), bucket: bucket, password: password}, nil
}

func (s *S3Saver) Name() string { return "s3" }

func (s *S3Saver) Save(ctx context.Context, bookID int64, data []byte) (string, error) {
	if s.password != "" {
		sealed, err := seal(data, s.password)
		if err != nil {
			return "", err
		}
		data = sealed
	}

	key := fmt.Sprintf("books/book_%d.json", bookID)
	contentType := "application/json"
	if s.password != "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
