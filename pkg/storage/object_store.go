package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket names shared with the existing deployment.
const (
	BucketDoctorDocuments      = "doctor-documents"
	BucketProfilePhotos        = "profile-photos"
	BucketComplaintAttachments = "complaint-attachments"
)

// ObjectStore provides access to one bucket of object storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Buckets groups the stores the portal writes to.
type Buckets struct {
	DoctorDocuments      ObjectStore
	ProfilePhotos        ObjectStore
	ComplaintAttachments ObjectStore
}

// MinioConfig holds the connection settings for MinIO/S3 compatible storage.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBuckets connects once and ensures every portal bucket exists.
func NewMinioBuckets(ctx context.Context, cfg MinioConfig) (Buckets, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return Buckets{}, fmt.Errorf("init minio client: %w", err)
	}
	open := func(bucket string) (*MinioStore, error) {
		return newMinioStore(ctx, client, bucket)
	}
	docs, err := open(BucketDoctorDocuments)
	if err != nil {
		return Buckets{}, err
	}
	photos, err := open(BucketProfilePhotos)
	if err != nil {
		return Buckets{}, err
	}
	attachments, err := open(BucketComplaintAttachments)
	if err != nil {
		return Buckets{}, err
	}
	return Buckets{DoctorDocuments: docs, ProfilePhotos: photos, ComplaintAttachments: attachments}, nil
}

func newMinioStore(ctx context.Context, client *minio.Client, bucket string) (*MinioStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Put uploads an object.
func (m *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// ObjectKey builds "<owner>/<id><ext>" keys with a lowercased extension.
func ObjectKey(ownerID, id, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ownerID + "/" + id + ext
}
