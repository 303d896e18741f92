package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore uploads car images to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	scheme string
}

// NewMinioStore connects to the object storage endpoint and verifies the
// bucket is reachable.
func NewMinioStore(endpoint, accessKey, secretKey, bucket, region string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: connect: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, fmt.Errorf("object store: check bucket %s: %w", bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("object store: bucket %s does not exist", bucket)
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	return &MinioStore{client: client, bucket: bucket, scheme: scheme}, nil
}

// Put uploads one object and returns its public URL.
func (s *MinioStore) Put(key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(context.Background(), s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			CacheControl: "max-age=31536000",
		})
	if err != nil {
		return "", fmt.Errorf("object store: put %s: %w", key, err)
	}
	return fmt.Sprintf("%s://%s/%s/%s", s.scheme, s.client.EndpointURL().Host, s.bucket, key), nil
}
