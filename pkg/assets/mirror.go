package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// PutObjectAPI is the subset of the S3 client used by S3Mirror.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads published assets to a bucket so a CDN can serve them
// under the same stamped names.
//
// Example usage:
//
//	client, err := assets.NewS3Client(ctx, "eu-central-1")
//	mirror := assets.NewS3Mirror(client, "my-bucket", "engine/")
//	err := mirror.Mirror(ctx, manifest)
type S3Mirror struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Mirror creates a mirror uploading to bucket under key prefix.
func NewS3Mirror(client PutObjectAPI, bucket, prefix string) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: slog.Default().With("component", "assets-mirror"),
	}
}

// WithLogger sets the mirror logger.
func (s *S3Mirror) WithLogger(logger *slog.Logger) *S3Mirror {
	if logger != nil {
		s.logger = logger.With("component", "assets-mirror")
	}
	return s
}

// Key returns the object key for a binding: the prefix plus the last
// segment of the stamped URL.
func (s *S3Mirror) Key(b Binding) string {
	name := b.URL[strings.LastIndex(b.URL, "/")+1:]
	return s.prefix + name
}

// Mirror uploads every binding of m concurrently.
func (s *S3Mirror) Mirror(ctx context.Context, m *Manifest) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range m.Bindings() {
		g.Go(func() error {
			return s.put(ctx, b)
		})
	}
	return g.Wait()
}

func (s *S3Mirror) put(ctx context.Context, b Binding) error {
	f, err := os.Open(b.Path)
	if err != nil {
		return fmt.Errorf("assets: mirror %s: %w", b.Name, err)
	}
	defer f.Close()

	key := s.Key(b)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String(b.ContentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
		Metadata: map[string]string{
			"stamp": b.Stamp,
		},
	})
	if err != nil {
		return fmt.Errorf("assets: mirror %s to s3://%s/%s: %w", b.Name, s.bucket, key, err)
	}
	s.logger.Debug("asset mirrored", "bucket", s.bucket, "key", key)
	return nil
}

// NewS3Client builds an S3 client for region. Credentials come from the
// default AWS chain: environment, shared config and profiles, SSO, and
// container or instance roles.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("assets: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}
