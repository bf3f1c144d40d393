package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Client stores exports and fetches uploaded decks.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
	prefix     string
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Metadata     map[string]string `json:"metadata"`
}

// S3Options configures an S3Client. Empty credentials and region fall back
// to the default AWS chain.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client creates a client for opts.Bucket.
func NewS3Client(ctx context.Context, o S3Options) (*S3Client, error) {
	if o.Bucket == "" {
		return nil, fmt.Errorf("s3: empty bucket name")
	}
	var opts []func(*awscfg.LoadOptions) error
	if o.Region != "" {
		opts = append(opts, awscfg.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			// S3-compatible stores such as MinIO
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: o.Bucket,
		prefix:     strings.Trim(o.Prefix, "/"),
	}, nil
}

// Bucket returns the bucket name.
func (s *S3Client) Bucket() string { return s.bucketName }

// HeadBucket checks the bucket is reachable with the current credentials.
func (s *S3Client) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}

// Key joins the configured prefix, the job id and name.
func (s *S3Client) Key(jobID, name string) string {
	return objectKey(s.prefix, jobID, name)
}

func objectKey(prefix, jobID, name string) string {
	if prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(prefix, jobID, name)
}

// DownloadFile fetches key and its user metadata.
func (s *S3Client) DownloadFile(ctx context.Context, key string) ([]byte, *FileMetadata, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	metadata := &FileMetadata{Metadata: make(map[string]string), Size: int64(len(data))}
	if result.ContentType != nil {
		metadata.ContentType = *result.ContentType
	}
	for k, v := range result.Metadata {
		metadata.Metadata[strings.ToLower(k)] = v
	}
	metadata.OriginalName = metadata.Metadata["name"]

	log.Info().
		Str("bucket", s.bucketName).
		Str("key", key).
		Str("original_name", metadata.OriginalName).
		Int("size", len(data)).
		Msg("downloaded file from S3")
	return data, metadata, nil
}

// UploadFile stores data under key using the multipart-capable uploader.
func (s *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	log.Info().Str("bucket", s.bucketName).Str("key", key).Int("size", len(data)).Msg("uploaded file to S3")
	return nil
}

// ListNextVersion returns the next free N for keys named baseKey_vN.
func (s *S3Client) ListNextVersion(ctx context.Context, baseKey string) (int, error) {
	if baseKey == "" {
		return 1, nil
	}

	prefix := baseKey + "_v"
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 1, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return nextVersion(baseKey, keys), nil
}

func nextVersion(baseKey string, keys []string) int {
	prefix := baseKey + "_v"
	maxVersion := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		verStr := strings.TrimPrefix(key, prefix)
		verStr = strings.TrimSuffix(verStr, path.Ext(verStr))
		if n, err := strconv.Atoi(verStr); err == nil && n > maxVersion {
			maxVersion = n
		}
	}
	return maxVersion + 1
}

// UploadVersioned stores data as baseKey_vN<ext> with the next free N and
// returns the key written.
func (s *S3Client) UploadVersioned(ctx context.Context, baseKey, ext string, data []byte, contentType string, meta map[string]string) (string, error) {
	v, err := s.ListNextVersion(ctx, baseKey)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s_v%d%s", baseKey, v, ext)
	if err := s.UploadFile(ctx, key, data, contentType, meta); err != nil {
		return "", err
	}
	return key, nil
}

// CopyObjectWithMetadata copies an object to a new key and replaces its
// content type and metadata.
func (s *S3Client) CopyObjectWithMetadata(ctx context.Context, srcKey, dstKey, contentType string, meta map[string]string) error {
	if srcKey == "" || dstKey == "" {
		return fmt.Errorf("copy: empty src or dst key")
	}
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucketName),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(fmt.Sprintf("%s/%s", s.bucketName, srcKey)),
		ContentType:       aws.String(contentType),
		Metadata:          meta,
		MetadataDirective: s3types.MetadataDirectiveReplace,
	})
	if err != nil {
		return fmt.Errorf("copy object failed: %w", err)
	}
	return nil
}
