package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tencentyun/cos-go-sdk-v5"

	apperrors "github.com/jsnap/pkg/errors"
)

// COSConfig holds COS-specific configuration.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g., "myqcloud.com"
	Scheme    string // e.g., "https" or "http"
}

// COSStorage implements Storage for Tencent Cloud COS.
type COSStorage struct {
	client    *cos.Client
	bucketURL *url.URL
}

// NewCOSStorage creates a new COSStorage instance.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS storage")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	return newCOSStorage(bucketURL, cfg.SecretID, cfg.SecretKey), nil
}

func newCOSStorage(bucketURL *url.URL, secretID, secretKey string) *COSStorage {
	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &COSStorage{client: client, bucketURL: bucketURL}
}

// Open streams the object body.
func (s *COSStorage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, 0, s.wrap(err, key, "failed to download from COS")
	}
	size := resp.ContentLength
	if size < 0 {
		size = -1
	}
	return resp.Body, size, nil
}

// Size returns the object's Content-Length.
func (s *COSStorage) Size(ctx context.Context, key string) (int64, error) {
	resp, err := s.client.Object.Head(ctx, key, nil)
	if err != nil {
		return 0, s.wrap(err, key, "failed to stat COS object")
	}
	return resp.ContentLength, nil
}

// Exists checks if an object exists at the specified key.
func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check existence in COS: %w", err)
	}
	return ok, nil
}

// GetURL returns the object URL.
func (s *COSStorage) GetURL(key string) string {
	return s.bucketURL.String() + "/" + key
}

func (s *COSStorage) wrap(err error, key, msg string) error {
	if cos.IsNotFoundError(err) {
		return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("object not found: %s", key), err)
	}
	return apperrors.Wrap(apperrors.CodeStorageError, msg, err)
}
