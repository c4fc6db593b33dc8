// Package storage uploads finished archives to an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Uploader builds a client from the default AWS chain. Static keys, when
// set, take precedence; a custom endpoint switches to path style addressing.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: missing bucket")
	}

	opts := []func(*config.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3UploaderWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3UploaderWithClient(client PutObjectAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Key is the object key of the file at p.
func (u *S3Uploader) Key(p string) string {
	name := filepath.Base(p)

	if u.prefix == "" {
		return name
	}

	return path.Join(strings.Trim(u.prefix, "/"), name)
}

// Upload puts the file at p in the bucket and returns its key.
func (u *S3Uploader) Upload(ctx context.Context, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", p, err)
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", p, err)
	}

	key := u.Key(p)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading %s to s3://%s/%s: %w", p, u.bucket, key, err)
	}

	zerolog.Ctx(ctx).Info().Str("bucket", u.bucket).Str("key", key).Msg("archive uploaded")

	return key, nil
}
