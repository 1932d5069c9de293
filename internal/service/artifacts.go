package service

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactStore archives per-cell logs, coverage reports and built
// distributions. Archiving is best effort: its failures are logged,
// never turned into stage outcomes.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type MinioArtifactStore struct {
	client *minio.Client
	bucket string
}

func NewMinioArtifactStore(endpoint, accessKey, secretKey, bucket string) (*MinioArtifactStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArtifactStore{client: client, bucket: bucket}, nil
}

func (s *MinioArtifactStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (s *MinioArtifactStore) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	return err
}

// archiveArtifact is the shared nil-safe helper for orchestrator call
// sites.
func archiveArtifact(
	ctx context.Context,
	artifacts ArtifactStore,
	runID int64,
	stage, cellLabel, name string,
	data []byte,
	contentType string,
) {
	if artifacts == nil || len(data) == 0 {
		return
	}
	key := fmt.Sprintf("%d/%s/%s/%s", runID, stage, cellLabel, name)
	if err := artifacts.Put(ctx, key, data, contentType); err != nil {
		log.Printf("err archiving artifact %s: %+v\n", key, err)
	}
}
