package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/classcam/internal/config"
	"github.com/your-org/classcam/internal/facedb"
)

const snapshotContentType = "application/msgpack"

// MinIOStore is an S3 bucket holding captured frames and, for the minio
// backend, the face database snapshot.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket on first use.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	case exists:
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetObject reads a whole object. A missing key yields an error matching
// errObjectNotFound.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; the first read reports a missing key.
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("get %s: %w", key, errObjectNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

var errObjectNotFound = errors.New("object not found")

// PruneObjects removes objects under prefix last modified before cutoff and
// returns how many were removed. Listing and removal are streamed.
func (s *MinIOStore) PruneObjects(ctx context.Context, prefix string, cutoff time.Time) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sent int
	stale := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	listed := make(chan struct{})
	go func() {
		defer close(listed)
		defer close(stale)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr <- fmt.Errorf("list %s: %w", prefix, obj.Err)
				return
			}
			if !obj.LastModified.Before(cutoff) {
				continue
			}
			select {
			case stale <- obj:
				sent++
			case <-ctx.Done():
				return
			}
		}
	}()

	var failed int
	var firstErr error
	for res := range s.client.RemoveObjects(ctx, s.bucket, stale, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", res.ObjectName, res.Err)
		}
	}
	cancel()
	<-listed

	select {
	case err := <-listErr:
		return sent - failed, err
	default:
	}
	return sent - failed, firstErr
}

// Ping checks that the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	return nil
}

// SnapshotStore returns a facedb.Store keeping the snapshot at key.
func (s *MinIOStore) SnapshotStore(key string) *MinIOSnapshotStore {
	return &MinIOSnapshotStore{objects: s, key: key}
}

// MinIOSnapshotStore persists the face database as one msgpack object.
type MinIOSnapshotStore struct {
	objects *MinIOStore
	key     string
}

func (m *MinIOSnapshotStore) Load(ctx context.Context) (*facedb.Snapshot, error) {
	data, err := m.objects.GetObject(ctx, m.key)
	if errors.Is(err, errObjectNotFound) {
		return nil, facedb.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return facedb.DecodeSnapshot(data)
}

func (m *MinIOSnapshotStore) Save(ctx context.Context, snap *facedb.Snapshot) error {
	data, err := facedb.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return m.objects.PutObject(ctx, m.key, data, snapshotContentType)
}
