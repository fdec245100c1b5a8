package config

import (
	"context"
	"fmt"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	backendbadger "github.com/riverfs/nfsd3/internal/backend/badger"
	backendmemory "github.com/riverfs/nfsd3/internal/backend/memory"
	backends3 "github.com/riverfs/nfsd3/internal/backend/s3"
	"github.com/riverfs/nfsd3/internal/nfs3"
)

// BuildBackend constructs the nfs3.Backend selected by cfg, along with
// the root file handle a MOUNT share should hand out for it. The
// returned closer, if non-nil, must be called at shutdown.
func BuildBackend(ctx context.Context, cfg BackendConfig) (nfs3.Backend, nfs3.FileHandle, func() error, error) {
	switch cfg.Type {
	case "memory", "":
		b := backendmemory.New()
		return b, b.Root(), func() error { return nil }, nil

	case "badger":
		b, err := backendbadger.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("config: build badger backend: %w", err)
		}
		return b, b.Root(), b.Close, nil

	case "s3":
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("config: build s3 backend: %w", err)
		}
		b := backends3.New(backends3.Config{
			Client:    client,
			Bucket:    cfg.S3.Bucket,
			KeyPrefix: cfg.S3.KeyPrefix,
		})
		return b, b.Root(), func() error { return nil }, nil

	default:
		return nil, 0, nil, fmt.Errorf("config: unknown backend type %q", cfg.Type)
	}
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	}), nil
}
