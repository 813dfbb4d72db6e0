// Package storage archives fetched pages in MinIO/S3 so an ingestion can be
// inspected or replayed later.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mfenderov/pagechat/pkg/models"
)

const (
	snapshotRoot = "snapshots"
	bodyObject   = "page"
	metaObject   = "metadata.json"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for page snapshots.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{minioClient: minioClient, bucket: config.Bucket}, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Snapshot is a raw page as it was fetched.
type Snapshot struct {
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
	FetchedAt   time.Time
}

// SnapshotMetadata is stored next to every snapshot body.
type SnapshotMetadata struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	StatusCode  int    `json:"status_code"`
	Size        int    `json:"size"`
	FetchedAt   string `json:"fetched_at"`
	Prefix      string `json:"prefix"`
}

// URLPrefix is the object prefix holding all snapshots of url.
func URLPrefix(url string) string {
	return path.Join(snapshotRoot, models.GenerateDocumentID(url))
}

// SnapshotPrefix returns snapshots/{doc-id}/{timestamp} for a snapshot.
func SnapshotPrefix(url string, fetchedAt time.Time) string {
	return path.Join(URLPrefix(url), fetchedAt.UTC().Format("2006-01-02T15-04-05.000"))
}

// PutSnapshot writes the page body and its metadata and returns the prefix used.
func (c *Client) PutSnapshot(ctx context.Context, snap Snapshot) (string, error) {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	contentType := snap.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	prefix := SnapshotPrefix(snap.URL, snap.FetchedAt)

	_, err := c.minioClient.PutObject(ctx, c.bucket, path.Join(prefix, bodyObject),
		bytes.NewReader(snap.Body), int64(len(snap.Body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put snapshot body: %w", err)
	}

	meta := SnapshotMetadata{
		URL:         snap.URL,
		ContentType: snap.ContentType,
		StatusCode:  snap.StatusCode,
		Size:        len(snap.Body),
		FetchedAt:   snap.FetchedAt.UTC().Format(time.RFC3339),
		Prefix:      prefix,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = c.minioClient.PutObject(ctx, c.bucket, path.Join(prefix, metaObject),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("failed to put metadata: %w", err)
	}

	return prefix, nil
}

// ListSnapshots returns the prefixes of all snapshots of url, oldest first.
func (c *Client) ListSnapshots(ctx context.Context, url string) ([]string, error) {
	var prefixes []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    URLPrefix(url) + "/",
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/"+metaObject) {
			prefixes = append(prefixes, path.Dir(object.Key))
		}
	}

	sort.Strings(prefixes)
	return prefixes, nil
}

// GetMetadata reads the metadata stored under prefix.
func (c *Client) GetMetadata(ctx context.Context, prefix string) (*SnapshotMetadata, error) {
	data, err := c.get(ctx, path.Join(prefix, metaObject))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}

// GetBody reads the page body stored under prefix.
func (c *Client) GetBody(ctx context.Context, prefix string) ([]byte, error) {
	data, err := c.get(ctx, path.Join(prefix, bodyObject))
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot body: %w", err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, objectName string) ([]byte, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()
	return io.ReadAll(object)
}
