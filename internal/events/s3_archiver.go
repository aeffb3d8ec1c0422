package events

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver uploads the result-row CSV of a finished action to object storage.
type Archiver interface {
	ArchiveResults(ctx context.Context, actionID string, csvContent string) (string, error)
}

// S3Archiver writes result CSVs to S3 paths like:
//
//	s3://<bucket>/<prefix>/actions/YYYY/MM/DD/<actionID>.csv
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3Archiver(ctx context.Context, bucket string, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client)

	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: uploader,
	}, nil
}

// ArchiveResults uploads the CSV and returns the object key so callers can log
// the S3 pointer.
func (s *S3Archiver) ArchiveResults(ctx context.Context, actionID string, csvContent string) (string, error) {
	if actionID == "" {
		return "", fmt.Errorf("action id required")
	}
	year, month, day := time.Now().UTC().Date()
	objectKey := path.Join(s.prefix, "actions",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.csv", actionID),
	)

	upParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(csvContent),
		ContentType: aws.String("text/csv"),
		// Server-side encryption with S3-managed keys (SSE-S3).
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if _, err := s.uploader.Upload(ctx, upParams); err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return objectKey, nil
}
