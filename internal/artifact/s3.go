package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3 compatible services
	PathStyle bool
	Prefix    string

	// Static credentials; the default chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 stores artifacts as objects in one bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds the client from the default AWS configuration. Static
// credentials come from cfg or the CONTAGION_S3_ACCESS_KEY_ID and
// CONTAGION_S3_SECRET_ACCESS_KEY variables.
func NewS3(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	if cfg.AccessKeyID == "" {
		cfg.AccessKeyID = os.Getenv("CONTAGION_S3_ACCESS_KEY_ID")
		cfg.SecretAccessKey = os.Getenv("CONTAGION_S3_SECRET_ACCESS_KEY")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3) objectKey(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		clean = path.Join(s.prefix, clean)
	}
	return clean, nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	obj, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &obj, Body: bytes.NewReader(data)}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, obj, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, obj), nil
}

func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &obj})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, obj, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
