// Package deploy publishes function artifacts and deploys synthesized
// templates as CloudFormation stacks.
package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StoreConfig describes the S3 compatible store assets are published to.
type StoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// Validate checks required fields.
func (c StoreConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("asset store endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("asset bucket is required")
	}
	return nil
}

// ObjectStore is the subset of *minio.Client used for publishing.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewMinIOClient connects to the asset store. Without static keys the
// standard AWS credential sources are tried in order.
func NewMinIOClient(cfg StoreConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	if cfg.AccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: newTransport()}},
		})
	}

	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Asset is a published object.
type Asset struct {
	Bucket string
	Key    string
	SHA256 string
	Size   int64
	// Uploaded is false when an identical object was already present.
	Uploaded bool
}

// AssetPublisher uploads content-addressed assets.
type AssetPublisher struct {
	store  ObjectStore
	bucket string
	region string
	logger *slog.Logger
}

// NewAssetPublisher creates a publisher writing to bucket.
func NewAssetPublisher(store ObjectStore, bucket, region string, logger *slog.Logger) *AssetPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetPublisher{store: store, bucket: bucket, region: region, logger: logger}
}

// PublishFile uploads the file at path as assets/<sha256><ext>.
func (p *AssetPublisher) PublishFile(ctx context.Context, path, contentType string) (Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Asset{}, fmt.Errorf("opening asset: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Asset{}, fmt.Errorf("hashing asset: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Asset{}, err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	key := "assets/" + sum + extension(contentType)
	return p.publish(ctx, key, sum, f, size, contentType)
}

// PublishBytes uploads data under prefix/<sha256><ext>.
func (p *AssetPublisher) PublishBytes(ctx context.Context, prefix string, data []byte, contentType string) (Asset, error) {
	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])
	key := prefix + "/" + hexSum + extension(contentType)
	return p.publish(ctx, key, hexSum, bytes.NewReader(data), int64(len(data)), contentType)
}

// URL returns the virtual-hosted S3 URL of an asset.
func (p *AssetPublisher) URL(a Asset) string {
	if p.region == "" || p.region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", a.Bucket, a.Key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.Bucket, p.region, a.Key)
}

func (p *AssetPublisher) publish(ctx context.Context, key, sum string, body io.Reader, size int64, contentType string) (Asset, error) {
	asset := Asset{Bucket: p.bucket, Key: key, SHA256: sum, Size: size}

	if err := p.ensureBucket(ctx); err != nil {
		return Asset{}, fmt.Errorf("ensure bucket %s: %w", p.bucket, err)
	}

	if _, err := p.store.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{}); err == nil {
		p.logger.Debug("asset already published", "bucket", p.bucket, "key", key)
		return asset, nil
	} else if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return Asset{}, fmt.Errorf("stat %s: %w", key, err)
	}

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := p.store.PutObject(ctx, p.bucket, key, body, size, opts); err != nil {
		return Asset{}, fmt.Errorf("upload %s: %w", key, err)
	}
	asset.Uploaded = true
	p.logger.Info("asset published", "bucket", p.bucket, "key", key, "size", size)
	return asset, nil
}

func (p *AssetPublisher) ensureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	p.logger.Info("creating asset bucket", "bucket", p.bucket, "region", p.region)
	return p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region})
}

func extension(contentType string) string {
	switch contentType {
	case "application/zip":
		return ".zip"
	case "application/json":
		return ".json"
	}
	return ""
}
