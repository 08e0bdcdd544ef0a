package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"voxpro/internal/config"
	"voxpro/internal/models"
)

const s3Prefix = "interactions/"

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Config struct {
	config.S3Config
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint   string
	HTTPClient *http.Client
}

// S3Store writes one JSON object per interaction under interactions/.
type S3Store struct {
	client s3API
	bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg.Bucket), nil
}

func newS3Store(client s3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Check verifies the bucket exists and is reachable with the configured
// credentials.
func (s *S3Store) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func objectKey(rec models.Record) string {
	return fmt.Sprintf("%s%s_%s.json", s3Prefix, rec.Timestamp.UTC().Format("20060102_150405"), rec.ID)
}

func (s *S3Store) Append(ctx context.Context, rec models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return recordError("encode", rec, err)
	}

	key := objectKey(rec)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return recordError("put object", rec, err)
	}

	log.Debug("Saved interaction to S3", "key", key)
	return nil
}

func (s *S3Store) Recent(ctx context.Context, limit int) ([]models.Record, error) {
	limit = clampLimit(limit)

	var objects []types.Object
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s3Prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s3Prefix, err)
		}
		objects = append(objects, page.Contents...)
	}

	sort.Slice(objects, func(i, j int) bool {
		ti, tj := aws.ToTime(objects[i].LastModified), aws.ToTime(objects[j].LastModified)
		if ti.Equal(tj) {
			return aws.ToString(objects[i].Key) > aws.ToString(objects[j].Key)
		}
		return ti.After(tj)
	})

	records := make([]models.Record, 0, min(limit, len(objects)))
	for _, obj := range objects {
		if len(records) == limit {
			break
		}
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, ".json") {
			continue
		}

		rec, err := s.load(ctx, key)
		if err != nil {
			log.Error("Failed to load interaction", "key", key, "err", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *S3Store) load(ctx context.Context, key string) (models.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return models.Record{}, err
	}
	defer out.Body.Close()

	var rec models.Record
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

func (s *S3Store) Close() error { return nil }
