package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// Store persists generated artifacts in an S3-compatible bucket.
type Store struct {
	cfg    Config
	client *s3.Client
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.New(options)

	return &Store{
		cfg:    cfg,
		client: client,
	}, nil
}

// Put stores data under key and returns the public URL of the object.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
}

// GetStream returns the object body as a stream plus its content type, or
// ErrNotFound. The caller owns the reader and must close it.
func (s *Store) GetStream(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("get from s3: %w", err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Get returns the object bytes and content type, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	body, contentType, err := s.GetStream(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("read s3 object: %w", err)
	}
	return data, contentType, nil
}

// Delete removes the object under key. Deleting a key that does not exist is
// a no-op success; the edit flow relies on that when it discards the stored
// original after a failed edit.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil
		}
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

// ObjectKey builds the storage key for a generated artifact:
// generations/{kind}/{owner}/{timestamp}_{sanitizedFilename}, below the
// configured prefix when one is set.
func (s *Store) ObjectKey(kind, ownerID, filename string) string {
	if ownerID == "" {
		ownerID = "anon"
	}
	name := fmt.Sprintf("%d_%s", time.Now().UTC().Unix(), SanitizeFilename(filename))
	key := path.Join("generations", kind, ownerID, name)
	if prefix := strings.Trim(s.cfg.Prefix, "/"); prefix != "" {
		key = path.Join(prefix, key)
	}
	return key
}

// SanitizeFilename keeps alphanumerics, dots, underscores and dashes so the
// result is safe for storage keys and URL paths.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '_' || c == '-':
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
