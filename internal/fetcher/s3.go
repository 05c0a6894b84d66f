package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// S3GetAPI is the part of the S3 client the fetcher uses.
type S3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "s3: load aws config")
	}
	return s3.NewFromConfig(awsCfg), nil
}

// ParseS3URL splits s3://bucket/key into bucket and key. The key may be
// empty when allowEmptyKey is set (a bucket-level prefix).
func ParseS3URL(rawURL string, allowEmptyKey bool) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "s3: parse url")
	}
	if u.Scheme != "s3" {
		return "", "", eris.Errorf("s3: expected s3 scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.Errorf("s3: missing bucket in %q", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" && !allowEmptyKey {
		return "", "", eris.Errorf("s3: missing object key in %q", rawURL)
	}
	return u.Host, key, nil
}

// S3Fetcher reads objects addressed as s3://bucket/key. The client is
// created on first use unless one was supplied.
type S3Fetcher struct {
	region string

	mu     sync.Mutex
	client S3GetAPI
}

// NewS3Fetcher creates an S3Fetcher that builds its client for region lazily.
func NewS3Fetcher(region string) *S3Fetcher {
	return &S3Fetcher{region: region}
}

// NewS3FetcherWithClient creates an S3Fetcher around an existing client.
func NewS3FetcherWithClient(client S3GetAPI) *S3Fetcher {
	return &S3Fetcher{client: client}
}

func (f *S3Fetcher) getClient(ctx context.Context) (S3GetAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		c, err := NewS3Client(ctx, f.region)
		if err != nil {
			return nil, err
		}
		f.client = c
	}
	return f.client, nil
}

// Download returns the object body. The SDK retries transient failures.
func (f *S3Fetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(rawURL, false)
	if err != nil {
		return nil, err
	}
	client, err := f.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "s3: get s3://%s/%s", bucket, key)
	}
	return out.Body, nil
}
