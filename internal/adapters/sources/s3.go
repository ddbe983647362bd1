package sources

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
)

// s3API is the subset of the S3 client the backend calls.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 fetches objects from an S3-compatible bucket.
type S3 struct {
	id     string
	bucket string
	prefix string
	client s3API
}

// NewS3 creates a backend for cfg. Static keys take precedence over the
// default credential chain; an endpoint selects path-style addressing.
func NewS3(ctx context.Context, cfg domain.SourceConfig) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		err = zerr.Wrap(err, domain.ErrInvalidSourceConfig.Error())
		return nil, zerr.With(err, "source", cfg.ID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3WithClient(cfg, client), nil
}

func newS3WithClient(cfg domain.SourceConfig, client s3API) *S3 {
	return &S3{id: cfg.ID, bucket: cfg.Bucket, prefix: cfg.Prefix, client: client}
}

func staticCredentials(keyID, secret string) aws.CredentialsProvider {
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: keyID, SecretAccessKey: secret, Source: "symcache"}, nil
	}))
}

// ID implements ports.SourceBackend.
func (s *S3) ID() string { return s.id }

// Fetch implements ports.SourceBackend.
func (s *S3) Fetch(ctx context.Context, objPath string) (io.ReadCloser, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, clean)),
	})
	if err != nil {
		return nil, classifyS3(err, s.id, objPath)
	}
	if out.ContentLength != nil && *out.ContentLength == 0 {
		_ = out.Body.Close()
		return nil, notFound(s.id, objPath)
	}
	return out.Body, nil
}

// Exists implements ports.SourceBackend.
func (s *S3) Exists(ctx context.Context, objPath string) (bool, error) {
	clean, err := cleanObjectPath(objPath)
	if err != nil {
		return false, nil
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, clean)),
	})
	if err == nil {
		return true, nil
	}
	err = classifyS3(err, s.id, objPath)
	if domain.KindOf(err) == domain.KindNotFound {
		return false, nil
	}
	return false, err
}

func classifyS3(err error, source, objPath string) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var missing *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &missing) {
		return notFound(source, objPath)
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == http.StatusNotFound {
			return notFound(source, objPath)
		}
		if code >= 300 {
			return classifyStatus(code, source, objPath)
		}
	}
	return transient(err, source, objPath)
}
