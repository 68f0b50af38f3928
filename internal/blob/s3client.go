package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// PresignExpiry is the validity window of every presigned URL. It is
// enforced by the blob store, not by this service.
const PresignExpiry = 3600 * time.Second

// Presigner is the blob-store collaborator. File bytes never pass through
// this service: clients upload and download directly against the URLs
// minted here.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// S3Presigner mints presigned URLs against an S3-compatible endpoint.
type S3Presigner struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	endpoint  string
}

// Config holds the S3 connection settings.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"` // empty = AWS
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// NewS3Presigner creates a presigner for the configured bucket.
func NewS3Presigner(cfg Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	if cfg.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     region,
			}, nil
		})
		awsCfg.EndpointResolverWithOptions = customResolver
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true // path-style URLs for non-AWS endpoints
		}
	})

	return &S3Presigner{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
	}, nil
}

// PresignPut mints a time-limited URL authorizing a single direct PUT of the
// object. The caller performs the byte upload itself.
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	req, err := p.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) {
		o.Expires = PresignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign put: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": p.bucket,
		"key":    key,
	}).Debug("Presigned PUT URL issued")

	return req.URL, nil
}

// PresignGet mints a time-limited URL authorizing a single direct GET.
func (p *S3Presigner) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = PresignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign get: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": p.bucket,
		"key":    key,
	}).Debug("Presigned GET URL issued")

	return req.URL, nil
}

// Exists checks whether the object was actually uploaded. A record can
// exist without a blob when a client abandoned the upload after
// authorization.
func (p *S3Presigner) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object: %w", err)
	}
	return true, nil
}

// Delete removes the object. Used by the reconciliation worker only.
func (p *S3Presigner) Delete(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": p.bucket,
		"key":    key,
	}).Debug("Deleted object from blob store")

	return nil
}
