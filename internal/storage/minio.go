package storage

import (
	"GoCDN/config"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store against a single bucket. Blobs live under
// blobs/<key>, chunk scratch under chunks/<uploadID>/<index>.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore builds a Store from a MinIO client and bucket.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// DialMinio connects to MinIO with the configured credentials and ensures the
// bucket exists.
func DialMinio(ctx context.Context, cfg *config.Config, bucket string) (*MinioStore, error) {
	client, err := minio.New(fmt.Sprintf("%s:%s", cfg.MinioHost, cfg.MinioPort), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUsername, cfg.MinioPassword, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		log.Println("created bucket", bucket)
	}
	return NewMinioStore(client, bucket), nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
	}
	return false
}

func blobObject(key string) string {
	return "blobs/" + key
}

func chunkPrefix(uploadID string) string {
	return "chunks/" + uploadID + "/"
}

// Put uploads a blob.
func (s *MinioStore) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, blobObject(key), reader, size, minio.PutObjectOptions{})
	return err
}

// Open fetches a blob as a seekable reader.
func (s *MinioStore) Open(ctx context.Context, key string) (io.ReadSeekCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, blobObject(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	return obj, ObjectInfo{Key: key, Size: stat.Size}, nil
}

// Stat reports a blob's size.
func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, blobObject(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: key, Size: stat.Size}, nil
}

// Remove deletes a blob.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, blobObject(key), minio.RemoveObjectOptions{})
}

// CreateSession is a no-op: object stores have no directories, the session
// exists once its first chunk does.
func (s *MinioStore) CreateSession(ctx context.Context, uploadID string) error {
	return nil
}

// PutChunk stores one chunk object under its index.
func (s *MinioStore) PutChunk(ctx context.Context, uploadID string, index int, reader io.Reader, size int64) error {
	if index < 0 {
		return fmt.Errorf("invalid chunk index %d", index)
	}
	object := chunkPrefix(uploadID) + strconv.Itoa(index)
	_, err := s.client.PutObject(ctx, s.bucket, object, reader, size, minio.PutObjectOptions{})
	return err
}

// OpenChunk opens one received chunk for reading.
func (s *MinioStore) OpenChunk(ctx context.Context, uploadID string, index int) (io.ReadCloser, error) {
	object := chunkPrefix(uploadID) + strconv.Itoa(index)
	obj, err := s.client.GetObject(ctx, s.bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

// ReceivedIndices derives received chunks from a prefix listing.
func (s *MinioStore) ReceivedIndices(ctx context.Context, uploadID string) ([]int, error) {
	prefix := chunkPrefix(uploadID)
	indices := make([]int, 0, 16)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}
		index, err := strconv.Atoi(strings.TrimPrefix(info.Key, prefix))
		if err != nil || index < 0 {
			continue
		}
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices, nil
}

// RemoveSession deletes every chunk object for an upload.
func (s *MinioStore) RemoveSession(ctx context.Context, uploadID string) error {
	prefix := chunkPrefix(uploadID)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return info.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
