package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/audit"
	auditBadger "github.com/stratafs/stratafs/pkg/audit/badger"
	"github.com/stratafs/stratafs/pkg/identity"
	identityBadger "github.com/stratafs/stratafs/pkg/identity/badger"
	identityMemory "github.com/stratafs/stratafs/pkg/identity/memory"
	"github.com/stratafs/stratafs/pkg/store/object"
	objectMemory "github.com/stratafs/stratafs/pkg/store/object/memory"
	objectS3 "github.com/stratafs/stratafs/pkg/store/object/s3"
)

// CreateObjectStore creates an object store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration from
// the corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "s3": Uses pkg/store/object/s3 (Amazon S3 or compatible storage)
//   - "memory": Uses pkg/store/object/memory (in-memory storage, ephemeral)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Object store configuration
//
// Returns:
//   - object.Store: Initialized object store
//   - error: Configuration or initialization error
func CreateObjectStore(ctx context.Context, cfg *StorageConfig) (object.Store, error) {
	switch cfg.Type {
	case "s3":
		return createS3ObjectStore(ctx, cfg.S3)
	case "memory":
		return objectMemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown object store type: %q (supported: s3, memory)", cfg.Type)
	}
}

// createS3ObjectStore creates an S3-backed object store.
func createS3ObjectStore(ctx context.Context, options map[string]any) (object.Store, error) {
	// Define the configuration struct for the S3 object store
	type S3ObjectStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		DeleteChunkSize int    `mapstructure:"delete_chunk_size"`
	}

	var storeCfg S3ObjectStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 object store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 object store: region is required")
	}

	client, err := createS3Client(ctx, s3ClientOptions{
		Region:          storeCfg.Region,
		Endpoint:        storeCfg.Endpoint,
		AccessKeyID:     storeCfg.AccessKeyID,
		SecretAccessKey: storeCfg.SecretAccessKey,
		MaxRetries:      storeCfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	store, err := objectS3.New(ctx, objectS3.Config{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		DeleteChunkSize: storeCfg.DeleteChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 object store: %w", err)
	}

	log.Info().
		Str("bucket", storeCfg.Bucket).
		Str("region", storeCfg.Region).
		Str("endpoint", storeCfg.Endpoint).
		Msg("S3 object store initialized")

	return store, nil
}

// s3ClientOptions carries the parameters for building an S3 client.
type s3ClientOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
}

// createS3Client builds an S3 client from explicit options, falling back to
// the default AWS credential chain when no static credentials are given.
func createS3Client(ctx context.Context, opts s3ClientOptions) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if opts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Configure retries for resilience against transient S3 failures (502,
	// 503, timeouts). Default to 10 attempts, up from the AWS default of 3.
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if opts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// CreateIdentityStore creates an identity store based on configuration.
//
// Supported types:
//   - "badger": Uses pkg/identity/badger (BadgerDB storage, persistent)
//   - "memory": Uses pkg/identity/memory (in-memory storage, ephemeral)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Identity store configuration
//
// Returns:
//   - identity.Store: Initialized identity store
//   - error: Configuration or initialization error
func CreateIdentityStore(ctx context.Context, cfg *IdentityConfig) (identity.Store, error) {
	switch cfg.Type {
	case "badger":
		return createBadgerIdentityStore(ctx, cfg.Badger)
	case "memory":
		return identityMemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown identity store type: %q (supported: badger, memory)", cfg.Type)
	}
}

// createBadgerIdentityStore creates a BadgerDB-backed persistent identity store.
func createBadgerIdentityStore(ctx context.Context, options map[string]any) (identity.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerIdentityStoreOptions struct {
		DBPath   string `mapstructure:"db_path"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var storeOpts BadgerIdentityStoreOptions
	if err := mapstructure.Decode(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger identity store options: %w", err)
	}

	if storeOpts.DBPath == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger identity store: db_path is required")
	}

	store, err := identityBadger.New(ctx, identityBadger.Config{
		DBPath:   storeOpts.DBPath,
		InMemory: storeOpts.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger identity store: %w", err)
	}

	return store, nil
}

// CreateAuditSink creates the audit event sink based on configuration.
//
// Returns nil (and no error) when auditing is disabled; callers treat a nil
// sink as "do not record".
func CreateAuditSink(ctx context.Context, cfg *AuditConfig) (audit.Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type BadgerAuditSinkOptions struct {
		DBPath   string `mapstructure:"db_path"`
		InMemory bool   `mapstructure:"in_memory"`
	}

	var sinkOpts BadgerAuditSinkOptions
	if err := mapstructure.Decode(cfg.Badger, &sinkOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger audit sink options: %w", err)
	}

	if sinkOpts.DBPath == "" && !sinkOpts.InMemory {
		return nil, fmt.Errorf("badger audit sink: db_path is required")
	}

	sink, err := auditBadger.New(ctx, auditBadger.Config{
		DBPath:   sinkOpts.DBPath,
		InMemory: sinkOpts.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger audit sink: %w", err)
	}

	return sink, nil
}

// CreateAuditTrail wires the emitter on top of the configured sink.
//
// Both returns are nil when auditing is disabled. The sink is returned
// alongside the emitter because the activity endpoints query it directly;
// the caller owns closing both (emitter first, then sink).
func CreateAuditTrail(ctx context.Context, cfg *AuditConfig) (*audit.Emitter, audit.Sink, error) {
	sink, err := CreateAuditSink(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if sink == nil {
		return nil, nil, nil
	}

	var geo *audit.GeoResolver
	if cfg.Geolocation.Enabled {
		geo = audit.NewGeoResolver(cfg.Geolocation.Endpoint)
	}

	return audit.NewEmitter(sink, geo, cfg.QueueSize), sink, nil
}
