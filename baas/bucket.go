package baas

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Storage is one bucket of objects.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	PublicURL(key string) string
}

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// NewS3Client builds a path-style client for an S3-compatible endpoint.
func NewS3Client(ctx context.Context, endpoint, region, accessKeyID, secret string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, secret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// Bucket implements Storage over one S3 bucket.
type Bucket struct {
	client     *s3.Client
	name       string
	publicBase string
}

// NewBucket wraps name. publicBase is the prefix public URLs are built on,
// e.g. https://x.supabase.co/storage/v1/object/public.
func NewBucket(client *s3.Client, name, publicBase string) *Bucket {
	return &Bucket{client: client, name: name, publicBase: strings.TrimRight(publicBase, "/")}
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", b.name, prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (b *Bucket) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", b.publicBase, b.name, key)
}
