// Package archive exports execution history to S3-compatible object
// storage before retention deletes it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/config"
	"github.com/watzon/gensched/internal/task"
)

var ErrInvalidConfig = errors.New("invalid archive configuration")

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes each batch of history as one zstd-compressed JSON
// lines object.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// New builds an archiver from the archive section. Static credentials are
// used when configured; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns an archiver over an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Archive uploads records. An empty batch is a no-op.
func (a *S3Archiver) Archive(ctx context.Context, records []*task.History) error {
	if len(records) == 0 {
		return nil
	}

	body, err := Encode(records)
	if err != nil {
		return err
	}

	key := a.key(records[0].StartedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return fmt.Errorf("putting archive object: %w", err)
	}

	log.Info().
		Str("bucket", a.bucket).
		Str("key", key).
		Int("records", len(records)).
		Int("bytes", len(body)).
		Msg("Archived history")
	return nil
}

// key groups objects by the day of the oldest record in the batch.
func (a *S3Archiver) key(oldest time.Time) string {
	oldest = oldest.UTC()
	name := fmt.Sprintf("%s-%s.jsonl.zst", a.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	return path.Join(a.prefix, "history", oldest.Format("2006/01/02"), name)
}

// Encode renders records as zstd-compressed JSON lines.
func Encode(records []*task.History) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, h := range records {
		if err := enc.Encode(h); err != nil {
			zw.Close()
			return nil, fmt.Errorf("encoding history %s: %w", h.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads an object produced by Encode.
func Decode(data []byte) ([]*task.History, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer zr.Close()

	var out []*task.History
	dec := json.NewDecoder(zr)
	for dec.More() {
		var h task.History
		if err := dec.Decode(&h); err != nil {
			return nil, fmt.Errorf("decoding archive: %w", err)
		}
		out = append(out, &h)
	}
	return out, nil
}
