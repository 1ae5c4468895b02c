package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jadidihosein68/osaconnect/internal/config"
	"github.com/jadidihosein68/osaconnect/internal/pkg/awsconfig"
)

// S3API is the slice of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner issues time-limited GET URLs.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps objects in one bucket under an optional prefix.
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	ttl       time.Duration
}

// NewS3Store wraps existing clients.
func NewS3Store(client S3API, presigner Presigner, bucket, prefix string, ttl time.Duration) *S3Store {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &S3Store{client: client, presigner: presigner, bucket: bucket, prefix: prefix, ttl: ttl}
}

// NewS3StoreFromConfig builds an S3 store from application config.
func NewS3StoreFromConfig(ctx context.Context, cfg config.MediaConfig, awsCfg config.AWSConfig) (*S3Store, error) {
	sdkCfg, err := awsconfig.Load(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(sdkCfg)
	return NewS3Store(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, cfg.PresignTTL()), nil
}

func (s *S3Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return path.Join(s.prefix, k)
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting object to S3: %w", err)
	}
	return nil
}

// Get downloads the object stored under key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 object body: %w", err)
	}
	return data, nil
}

// URL returns a presigned GET URL valid for the configured TTL.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presigning S3 object: %w", err)
	}
	return req.URL, nil
}
