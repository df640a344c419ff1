package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Lunnius/Npstest/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore is the ArtifactStore backed by a MinIO / S3 bucket
type MinioStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

var _ ArtifactStore = (*MinioStore)(nil)

func NewMinioStore(cfg *config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Store uploads data under {folder}/{uuid}{ext}. An existing object at the
// same name is never replaced.
func (s *MinioStore) Store(ctx context.Context, data []byte, folder string) (string, error) {
	name, contentType := objectName(folder, data)

	exists, err := s.objectExists(ctx, name)
	if err != nil {
		return "", &StorageWriteFailedError{Path: name, Err: err}
	}
	if exists {
		return "", &StorageWriteFailedError{Path: name, Err: ErrObjectExists}
	}

	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", &StorageWriteFailedError{Path: name, Err: err}
	}

	return s.GetPublicURL(name), nil
}

// Fetch downloads an object by its public URL
func (s *MinioStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	name, err := s.objectNameFromURL(url)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, url)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// SignedURL generates a presigned URL for the object with expiration
func (s *MinioStore) SignedURL(ctx context.Context, url string) (string, error) {
	name, err := s.objectNameFromURL(url)
	if err != nil {
		return "", err
	}

	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, name, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return signed.String(), nil
}

// GetPublicURL returns a public URL for the object (if bucket policy allows)
func (s *MinioStore) GetPublicURL(objectName string) string {
	return s.publicPrefix() + objectName
}

func (s *MinioStore) publicPrefix() string {
	if s.config.PublicURL != "" {
		return strings.TrimRight(s.config.PublicURL, "/") + "/"
	}
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/", protocol, s.config.Endpoint, s.bucket)
}

func (s *MinioStore) objectNameFromURL(url string) (string, error) {
	name, ok := strings.CutPrefix(url, s.publicPrefix())
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s is not in bucket %s", ErrArtifactNotFound, url, s.bucket)
	}
	return name, nil
}

func (s *MinioStore) objectExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, err
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
