package storage

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rowjay/arpm/internal/config"
)

// S3 archives to any S3-compatible bucket (AWS, MinIO, OSS).
type S3 struct {
	Client *minio.Client
	Bucket string
}

func NewS3(cfg config.S3Store) (*S3, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSInsecureSkip {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed MinIO
	}
	lookup := minio.BucketLookupDNS
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		Transport:    transport,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, err
	}
	return &S3{Client: client, Bucket: cfg.Bucket}, nil
}

func (s *S3) Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error {
	opts := minio.PutObjectOptions{UserMetadata: metadata, ContentType: contentType(key)}
	_, err := s.Client.PutObject(ctx, s.Bucket, key, reader, size, opts)
	return err
}

func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.Client.GetObject(ctx, s.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ch := s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	infos := []ObjectInfo{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, obj.Err
		}
		infos = append(infos, ObjectInfo{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified, ETag: obj.ETag, IsRecord: isRecord(obj.Key)})
	}
	return infos, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, key, minio.RemoveObjectOptions{})
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Client.StatObject(ctx, s.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
