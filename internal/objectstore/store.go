// Package objectstore keeps note pages as markdown objects in an
// S3-compatible bucket, one object per page under a folder prefix.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const contentType = "text/markdown; charset=utf-8"

var ErrDocumentNotFound = errors.New("document not found")

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
	logger logrus.FieldLogger
}

func New(opts Options, logger logrus.FieldLogger) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Store{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.WithField("bucket", s.bucket).Info("created notes bucket")
	return nil
}

func (s *Store) FindByName(ctx context.Context, folder, filename string) (notes.Document, bool, error) {
	key := ObjectKey(folder, filename)
	exists, err := s.exists(ctx, key)
	if err != nil || !exists {
		return notes.Document{}, false, err
	}
	return notes.Document{ID: key, Folder: folder, Filename: filename, WebURL: s.objectURL(key)}, true, nil
}

func (s *Store) Create(ctx context.Context, folder, filename, content string) (notes.Document, error) {
	key := ObjectKey(folder, filename)
	exists, err := s.exists(ctx, key)
	if err != nil {
		return notes.Document{}, err
	}
	if exists {
		return notes.Document{}, fmt.Errorf("object %s already exists", key)
	}
	if err := s.put(ctx, key, content); err != nil {
		return notes.Document{}, err
	}
	return notes.Document{ID: key, Folder: folder, Filename: filename, Content: content, WebURL: s.objectURL(key)}, nil
}

func (s *Store) Update(ctx context.Context, id, content string) (notes.Document, error) {
	exists, err := s.exists(ctx, id)
	if err != nil {
		return notes.Document{}, err
	}
	if !exists {
		return notes.Document{}, ErrDocumentNotFound
	}
	if err := s.put(ctx, id, content); err != nil {
		return notes.Document{}, err
	}
	folder, filename := path.Split(id)
	return notes.Document{
		ID:       id,
		Folder:   strings.TrimSuffix(folder, "/"),
		Filename: filename,
		Content:  content,
		WebURL:   s.objectURL(id),
	}, nil
}

func (s *Store) ReadContent(ctx context.Context, id string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get object %s: %w", id, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if isNotFound(err) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", id, err)
	}
	return string(raw), nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", key, err)
}

func (s *Store) put(ctx context.Context, key, content string) error {
	body := []byte(content)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *Store) objectURL(key string) string {
	u := *s.client.EndpointURL()
	u.Path = path.Join("/", s.bucket, key)
	return u.String()
}

// ObjectKey joins folder and filename into an object key. Slashes inside
// the folder name become nested prefixes.
func ObjectKey(folder, filename string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		return filename
	}
	return folder + "/" + filename
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
