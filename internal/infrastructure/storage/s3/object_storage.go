package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
)

type URLMode string

const (
	URLModePresigned URLMode = "presigned"
	URLModePublic    URLMode = "public"
)

const maxListKeys = 200

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLMode         URLMode
	PresignedTTL    time.Duration
}

// ObjectStorage - архив снимков в S3-совместимом бакете (Yandex Object Storage, MinIO, AWS).
type ObjectStorage struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	endpoint  string
	pathStyle bool
	urlMode   URLMode
	ttl       time.Duration
}

var _ port.ObjectStorage = (*ObjectStorage)(nil)

func (c *Config) normalize() error {
	c.Bucket = strings.TrimSpace(c.Bucket)
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "ru-central1"
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = "https://storage.yandexcloud.net"
	}
	switch c.URLMode {
	case "":
		c.URLMode = URLModePresigned
	case URLModePresigned, URLModePublic:
	default:
		return fmt.Errorf("unsupported s3 url mode: %s", c.URLMode)
	}
	if c.PresignedTTL <= 0 {
		c.PresignedTTL = 5 * time.Minute
	}
	return nil
}

func NewObjectStorage(ctx context.Context, cfg Config) (*ObjectStorage, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	// без статических ключей работает стандартная цепочка AWS (env, профиль, IAM role)
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("both s3 access key id and secret are required")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpoint
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &ObjectStorage{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		endpoint:  endpoint,
		pathStyle: cfg.UsePathStyle,
		urlMode:   cfg.URLMode,
		ttl:       cfg.PresignedTTL,
	}, nil
}

func (s *ObjectStorage) PutObject(ctx context.Context, key, contentType string, body []byte) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	}); err != nil {
		return "", fmt.Errorf("put object %s failed: %w", key, err)
	}

	return s.GetObjectURL(ctx, key)
}

// ListObjects возвращает не больше limit объектов под prefix, новые первыми.
func (s *ObjectStorage) ListObjects(ctx context.Context, prefix string, limit int) ([]port.ObjectInfo, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if limit <= 0 || limit > maxListKeys {
		limit = maxListKeys
	}

	maxKeys := int32(limit)
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  &prefix,
		MaxKeys: &maxKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("list objects failed: %w", err)
	}

	objects := make([]port.ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil || strings.TrimSpace(*obj.Key) == "" {
			continue
		}
		info := port.ObjectInfo{Key: *obj.Key}
		if obj.LastModified != nil {
			info.LastModified = obj.LastModified.UTC()
		}
		if u, err := s.GetObjectURL(ctx, *obj.Key); err == nil {
			info.URL = u
		}
		objects = append(objects, info)
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	return objects, nil
}

func (s *ObjectStorage) GetObjectURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if s.urlMode == URLModePublic {
		return PublicURL(s.endpoint, s.bucket, key, s.pathStyle), nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}
	return req.URL, nil
}

// PublicURL строит адрес объекта в публичном бакете.
func PublicURL(endpoint, bucket, key string, pathStyle bool) string {
	escaped := strings.ReplaceAll(url.PathEscape(key), "%2F", "/")
	endpoint = strings.TrimRight(endpoint, "/")
	if pathStyle {
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, escaped)
	}

	scheme := "https://"
	host := endpoint
	if strings.HasPrefix(host, "http://") {
		scheme = "http://"
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	return fmt.Sprintf("%s%s.%s/%s", scheme, bucket, host, escaped)
}
