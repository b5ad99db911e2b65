// Package s3 stores project objects in an S3-compatible bucket. The same
// store serves AWS and Supabase Storage, which exposes the S3 protocol.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"modsync/internal/config"
	"modsync/internal/syncerr"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type Store struct {
	client *s3.Client
	cfg    config.S3Config
}

// New builds a client for cfg. A non-empty Endpoint switches to path-style
// addressing, as needed by MinIO and Supabase.
func New(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, syncerr.New(syncerr.KindInvalidArgument, "s3 bucket is not configured")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 60 * time.Second,
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg), nil
}

func NewWithClient(client *s3.Client, cfg config.S3Config) *Store {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	return &Store{client: client, cfg: cfg}
}

func (s *Store) Connect(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.cfg.Bucket})
	if err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", s.cfg.Bucket, err)
	}

	return nil
}

func (s *Store) objectKey(key string) string {
	if s.cfg.Prefix == "" {
		return key
	}

	return s.cfg.Prefix + "/" + key
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.cfg.Bucket,
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, syncerr.Wrap(syncerr.KindNotFound, syncerr.ErrNotFound, "object %s", key)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	return io.ReadAll(resp.Body)
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.cfg.Bucket,
		Prefix: aws.String(s.objectKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.cfg.Prefix != "" {
				key = strings.TrimPrefix(key, s.cfg.Prefix+"/")
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// URL is the public CDN address when public_url is set, s3://bucket/key otherwise.
func (s *Store) URL(key string) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL + "/" + s.objectKey(key)
	}

	return "s3://" + s.cfg.Bucket + "/" + s.objectKey(key)
}

func (s *Store) ParseURL(url string) (string, error) {
	rest, ok := strings.CutPrefix(url, "s3://"+s.cfg.Bucket+"/")
	if !ok && s.cfg.PublicURL != "" {
		rest, ok = strings.CutPrefix(url, s.cfg.PublicURL+"/")
	}
	if !ok {
		return "", fmt.Errorf("%s does not belong to bucket %s", url, s.cfg.Bucket)
	}

	if s.cfg.Prefix != "" {
		rest, ok = strings.CutPrefix(rest, s.cfg.Prefix+"/")
		if !ok {
			return "", fmt.Errorf("%s is outside prefix %s", url, s.cfg.Prefix)
		}
	}

	return rest, nil
}

func isNotFound(err error) bool {
	if _, ok := errors.AsType[*types.NoSuchKey](err); ok {
		return true
	}

	_, ok := errors.AsType[*types.NotFound](err)
	return ok
}
