package report

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/fetcher"
)

// Sink stores a rendered report under name and returns where it landed.
type Sink interface {
	Put(ctx context.Context, name string, body []byte) (string, error)
}

// NewSink returns the sink for dest: S3 for s3:// prefixes, a local
// directory otherwise.
func NewSink(dest, region string) (Sink, error) {
	if IsS3(dest) {
		return NewS3Sink(dest, region)
	}
	return &LocalSink{Dir: dest}, nil
}

// LocalSink writes reports into a directory, creating it if needed.
type LocalSink struct {
	Dir string
}

// Put writes body to Dir/name.
func (s *LocalSink) Put(_ context.Context, name string, body []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create dir %s", dir)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", p)
	}
	zap.L().Info("report: written", zap.String("path", p), zap.Int("bytes", len(body)))
	return p, nil
}

// S3PutAPI is the part of the S3 client the sink uses.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports under an s3://bucket/prefix location.
type S3Sink struct {
	bucket string
	prefix string
	region string

	mu     sync.Mutex
	client S3PutAPI
}

// NewS3Sink parses dest; the client is built on first Put.
func NewS3Sink(dest, region string) (*S3Sink, error) {
	bucket, prefix, err := fetcher.ParseS3URL(dest, true)
	if err != nil {
		return nil, eris.Wrap(err, "report: s3 destination")
	}
	return &S3Sink{bucket: bucket, prefix: strings.Trim(prefix, "/"), region: region}, nil
}

// WithClient sets the S3 client.
func (s *S3Sink) WithClient(c S3PutAPI) *S3Sink {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	return s
}

func (s *S3Sink) getClient(ctx context.Context) (S3PutAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		c, err := fetcher.NewS3Client(ctx, s.region)
		if err != nil {
			return nil, err
		}
		s.client = c
	}
	return s.client, nil
}

// Put uploads body as text/plain to prefix/name.
func (s *S3Sink) Put(ctx context.Context, name string, body []byte) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	key := name
	if s.prefix != "" {
		key = path.Join(s.prefix, name)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return "", eris.Wrapf(err, "report: put s3://%s/%s", s.bucket, key)
	}
	loc := "s3://" + s.bucket + "/" + key
	zap.L().Info("report: uploaded", zap.String("location", loc), zap.Int("bytes", len(body)))
	return loc, nil
}
