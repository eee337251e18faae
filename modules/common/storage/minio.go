package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend - S3 호환 저장소 (self-hosted 배포용)
type MinioBackend struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioBackend - MinIO 클라이언트 생성
func NewMinioBackend(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBaseURL string) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	if publicBaseURL == "" {
		publicBaseURL = client.EndpointURL().String() + "/" + bucket
	}

	return &MinioBackend{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (m *MinioBackend) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio upload failed: %w", err)
	}
	return nil
}

func (m *MinioBackend) PublicURL(path string) string {
	return m.publicBaseURL + "/" + path
}
