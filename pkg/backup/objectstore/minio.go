// Package objectstore wraps the S3-compatible client used for snapshot
// storage.
package objectstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog/log"
)

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// RetentionDays is the lifecycle expiry installed on snapshot
	// prefixes.
	RetentionDays int
}

// Validate checks the connection settings.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object storage endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object storage credentials are required")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	return nil
}

// Client is the snapshot object storage client.
type Client struct {
	mc  *minio.Client
	cfg Config
}

// New creates a connected client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Client{mc: mc, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	log.Info().Str("bucket", bucket).Msg("snapshot bucket created")
	return nil
}

// EnsureRetention installs the snapshot expiry lifecycle rule on the
// bucket. The storage engine owns expiry from then on; the orchestration
// core never deletes snapshots.
func (c *Client) EnsureRetention(ctx context.Context, bucket string) error {
	if err := c.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-snapshots",
			Status: "Enabled",
			RuleFilter: lifecycle.Filter{
				Prefix: "backups/",
			},
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(c.cfg.RetentionDays),
			},
		},
	}

	if err := c.mc.SetBucketLifecycle(ctx, bucket, lc); err != nil {
		return fmt.Errorf("set lifecycle on %s: %w", bucket, err)
	}

	log.Info().
		Str("bucket", bucket).
		Int("retention_days", c.cfg.RetentionDays).
		Msg("snapshot retention rule installed")

	return nil
}

// Upload stores a local file under key.
func (c *Client) Upload(ctx context.Context, bucket, key, localPath string) error {
	info, err := c.mc.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	log.Info().Str("key", key).Int64("bytes", info.Size).Msg("snapshot uploaded")
	return nil
}

// Download retrieves key into a local file.
func (c *Client) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := c.mc.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	log.Info().Str("key", key).Str("local", localPath).Msg("snapshot downloaded")
	return nil
}

// List returns the keys under prefix in lexicographic order, which for
// snapshot keys equals chronological order.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}
