package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Client wraps the Cloud Storage SDK scoped to the configured bucket.
type Client struct {
	client        *storage.Client
	defaultBucket string
	publicBaseURL string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient boots a Cloud Storage client and verifies the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	opts := []option.ClientOption{}
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{
		client:        sc,
		defaultBucket: cfg.BucketName,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}

	if err := client.Ping(ctx); err != nil {
		_ = sc.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

// Upload streams the reader into the bucket and returns the public object URL.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gcs client not initialized")
	}
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("object path is required")
	}

	w := c.client.Bucket(c.defaultBucket).Object(objectPath).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing object %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing object %s: %w", objectPath, err)
	}

	return c.PublicURL(objectPath), nil
}

// Delete removes the object. Missing objects are treated as already deleted.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	err := c.client.Bucket(c.defaultBucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// PublicURL renders the canonical public URL for an object in the default bucket.
func (c *Client) PublicURL(objectPath string) string {
	escaped := url.PathEscape(objectPath)
	// PathEscape encodes separators too; restore them for readability.
	escaped = strings.ReplaceAll(escaped, "%2F", "/")
	return fmt.Sprintf("%s/%s/%s", c.publicBaseURL, c.defaultBucket, escaped)
}

// Ping checks the bucket metadata is readable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.client.Bucket(c.defaultBucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
