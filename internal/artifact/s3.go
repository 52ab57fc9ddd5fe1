package artifact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

// S3Archive stores artifacts in an S3 bucket under an optional key prefix.
// Cleanup uses object LastModified timestamps.
type S3Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ modq.ArtifactStore = (*S3Archive)(nil)

// NewS3Archive builds an S3-backed archive from config. Credentials fall back
// to the default AWS chain when not set explicitly; a custom endpoint enables
// path-style addressing for S3-compatible stores.
func NewS3Archive(ctx context.Context, cfg config.ArtifactConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for s3 artifact archive")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (a *S3Archive) Put(key string, img image.Image) error {
	if key == "" {
		return fmt.Errorf("invalid artifact key: %q", key)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding artifact %s: %w", key, err)
	}

	_, err := a.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.objectKey(key)),
		Body:        &buf,
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("uploading artifact %s: %w", key, err)
	}
	return nil
}

func (a *S3Archive) Open(key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching artifact %s: %w", key, err)
	}
	return out.Body, nil
}

func (a *S3Archive) Cleanup(cutoff time.Time) (int, error) {
	ctx := context.Background()
	removed := 0

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("listing artifacts: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return removed, fmt.Errorf("removing stale artifact %s: %w", aws.ToString(obj.Key), err)
			}
			removed++
		}
	}
	return removed, nil
}

func (a *S3Archive) objectKey(key string) string {
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}
