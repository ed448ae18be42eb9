package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"eris/internal/eris"
)

// S3 stores blocks as objects in a bucket, keyed under a prefix by the
// base32 form of their references.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible services
	// and switches the client to path-style addressing.
	Endpoint string
}

var _ eris.Store = (*S3)(nil)

func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *S3) key(ref eris.Reference) string { return s.prefix + ref.String() }

func (s *S3) Get(ctx context.Context, ref eris.Reference) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", ref, eris.ErrBlockNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", s.key(ref), err)
	}
	defer out.Body.Close()
	block, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", s.key(ref), err)
	}
	return block, nil
}

func (s *S3) Put(ctx context.Context, ref eris.Reference, block []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
		Body:   bytes.NewReader(block),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", s.key(ref), err)
	}
	return nil
}

// Has reports whether the bucket holds ref without fetching the body.
func (s *S3) Has(ctx context.Context, ref eris.Reference) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", s.key(ref), err)
	}
	return true, nil
}

func (s *S3) Close() error { return nil }
