package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseBackend - Supabase Storage 버킷
type SupabaseBackend struct {
	client        *storage_go.Client
	bucket        string
	publicBaseURL string
}

// NewSupabaseBackend - publicBaseURL이 비어 있으면 Supabase 공개 URL 규칙을 따른다
func NewSupabaseBackend(client *storage_go.Client, bucket, publicBaseURL string) *SupabaseBackend {
	return &SupabaseBackend{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *SupabaseBackend) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("supabase storage upload failed: %w", err)
	}
	return nil
}

func (s *SupabaseBackend) PublicURL(path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + path
	}
	return s.client.GetPublicUrl(s.bucket, path).SignedURL
}
