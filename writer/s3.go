package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "divrecon/config"
	"divrecon/logger"
)

// S3Uploader copies the local run artifacts to an S3 bucket after a
// successful run. Uploads never affect artifact content; a failed upload
// leaves the local files intact.
type S3Uploader struct {
	cfg      appconfig.S3Config
	s3Client *s3.Client
	version  string
	log      *logger.Entry
}

// NewS3Uploader configures the AWS SDK from the storage settings and
// validates that credentials resolve before any upload is attempted.
func NewS3Uploader(ctx context.Context, cfg appconfig.S3Config, version string) (*S3Uploader, error) {
	log := logger.GetLogger().WithComponent("s3_uploader")

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 uploader initialized")

	return &S3Uploader{
		cfg:      cfg,
		s3Client: client,
		version:  version,
		log:      log,
	}, nil
}

// UploadDir uploads every regular file in the artifact directory under
// prefix/<upload id>/. The upload id is only an S3 grouping key and appears
// nowhere in the artifacts themselves.
func (u *S3Uploader) UploadDir(ctx context.Context, dir string) error {
	uploadID := uuid.New().String()
	log := u.log.WithFields(logger.Fields{"upload_id": uploadID, "dir": dir})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read artifact directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", entry.Name(), err)
		}

		key := filepath.ToSlash(filepath.Join(u.cfg.Prefix, uploadID, entry.Name()))
		if err := u.putObject(ctx, key, data); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"bucket": u.cfg.Bucket,
				"s3_key": key,
			}).Error("failed to upload artifact")
			return err
		}
		uploaded++
	}

	log.WithFields(logger.Fields{"artifacts": uploaded}).Info("artifacts uploaded")
	return nil
}

func (u *S3Uploader) putObject(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
		Metadata: map[string]string{
			"divrecon-version": u.version,
		},
	}
	if _, err := u.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.cfg.Bucket, err)
	}
	return nil
}

func contentType(key string) string {
	switch filepath.Ext(key) {
	case ".json", ".jsonl":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".parquet":
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}
