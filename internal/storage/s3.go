// Package storage persists screenshots and avatars to S3-compatible object
// storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is an interface for testability.
type s3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// PublicBaseURL, when set, is used to build browsable object URLs
	// (e.g. a CDN or R2 public bucket domain).
	PublicBaseURL string
}

// Store wraps the S3 client for screenshot and avatar objects.
type Store struct {
	cfg    Config
	client s3API
}

func New(cfg Config) *Store {
	st := &Store{cfg: cfg}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		st.client = newS3Client(cfg)
	}
	return st
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Configured returns true when credentials and a bucket are set.
func (s *Store) Configured() bool {
	return s.client != nil
}

func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if s.client == nil {
		return fmt.Errorf("object storage not configured")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("object storage not configured")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PublicURL builds a browsable URL for the object key.
func (s *Store) PublicURL(key string) string {
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Bucket)
	}
	return base + "/" + key
}
