package drivers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Options configures an S3Driver
type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PathStyle    bool
	ArchiveClass string
}

// S3Driver implements ObjectStore for S3-compatible storage
type S3Driver struct {
	client       *s3.Client
	bucket       string
	archiveClass types.StorageClass
	logger       *zap.Logger
}

// NewS3Driver creates a new S3 storage driver. Without static keys the
// default AWS credential chain is used.
func NewS3Driver(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Driver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.ArchiveClass == "" {
		opts.ArchiveClass = string(types.StorageClassGlacierIr)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Driver{
		client:       client,
		bucket:       opts.Bucket,
		archiveClass: types.StorageClass(opts.ArchiveClass),
		logger:       logger,
	}, nil
}

// Name returns the driver name
func (d *S3Driver) Name() string {
	return "s3"
}

// List returns every key under prefix, following continuation tokens
func (d *S3Driver) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	keys := []string{}
	paginator := s3.NewListObjectsV2Paginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapS3Error("list objects in", d.bucket, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Head returns object metadata including the protect tag when present
func (d *S3Driver) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, wrapS3Error("head object", key, err)
	}

	info := ObjectInfo{
		Path:           key,
		SizeBytes:      aws.ToInt64(out.ContentLength),
		LastModifiedAt: aws.ToTime(out.LastModified),
		StorageClass:   string(out.StorageClass),
	}
	if info.StorageClass == "" {
		info.StorageClass = string(types.StorageClassStandard)
	}
	info.Archived = IsArchiveClass(info.StorageClass) || info.StorageClass == string(d.archiveClass)

	tags, err := d.tags(ctx, key)
	if err != nil {
		// some S3-compatible stores do not implement tagging
		d.logger.Debug("object tagging unavailable",
			zap.String("key", key),
			zap.Error(err))
	} else {
		info.ProtectedAt = parseProtectTag(tags[ProtectTag])
	}

	return info, nil
}

// Get retrieves data from S3
func (d *S3Driver) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error("get object", key, err)
	}
	return result.Body, nil
}

// Put stores data in S3
func (d *S3Driver) Put(ctx context.Context, key string, data io.Reader) error {
	if _, ok := data.(io.ReadSeeker); !ok {
		// PutObject needs a known length; spool streams to disk
		spool, err := os.CreateTemp("", "reclaimer-put-*")
		if err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		defer func() {
			_ = spool.Close()
			_ = os.Remove(spool.Name())
		}()
		if _, err := io.Copy(spool, data); err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("spool %s: %w", key, err)
		}
		data = spool
	}

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return wrapS3Error("put object", key, err)
	}
	return nil
}

// Delete removes an object from S3. S3 reports success for missing keys,
// so the key is checked first to surface ErrNotFound.
func (d *S3Driver) Delete(ctx context.Context, key string) error {
	if _, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return wrapS3Error("delete object", key, err)
	}

	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapS3Error("delete object", key, err)
	}
	return nil
}

// Archive copies the object onto itself with the archive storage class
func (d *S3Driver) Archive(ctx context.Context, key string) error {
	if err := d.transition(ctx, key, d.archiveClass); err != nil {
		return wrapS3Error("archive object", key, err)
	}
	d.logger.Debug("S3Driver.Archive",
		zap.String("key", key),
		zap.String("storage_class", string(d.archiveClass)))
	return nil
}

// Restore returns an archived object to the standard tier. Objects in
// GLACIER or DEEP_ARCHIVE need a restore request before they can be copied,
// so for those only the request is issued.
func (d *S3Driver) Restore(ctx context.Context, key string) error {
	head, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return wrapS3Error("restore object", key, err)
	}

	switch head.StorageClass {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
		_, err = d.client.RestoreObject(ctx, &s3.RestoreObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
			RestoreRequest: &types.RestoreRequest{
				Days: aws.Int32(7),
				GlacierJobParameters: &types.GlacierJobParameters{
					Tier: types.TierStandard,
				},
			},
		})
	default:
		err = d.transition(ctx, key, types.StorageClassStandard)
	}
	if err != nil {
		return wrapS3Error("restore object", key, err)
	}
	return nil
}

func (d *S3Driver) transition(ctx context.Context, key string, class types.StorageClass) error {
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(d.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(url.PathEscape(d.bucket + "/" + key)),
		StorageClass:      class,
		MetadataDirective: types.MetadataDirectiveCopy,
		TaggingDirective:  types.TaggingDirectiveCopy,
	})
	return err
}

// Protect sets the protect tag, keeping any other tags on the object
func (d *S3Driver) Protect(ctx context.Context, key string, at time.Time) error {
	tags, err := d.tags(ctx, key)
	if err != nil {
		return wrapS3Error("protect object", key, err)
	}
	tags[ProtectTag] = at.UTC().Format(time.RFC3339)

	set := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		set = append(set, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	_, err = d.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(d.bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: set},
	})
	if err != nil {
		return wrapS3Error("protect object", key, err)
	}
	return nil
}

func (d *S3Driver) tags(ctx context.Context, key string) (map[string]string, error) {
	out, err := d.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	tags := make(map[string]string, len(out.TagSet))
	for _, t := range out.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// HealthCheck verifies the bucket is reachable
func (d *S3Driver) HealthCheck(ctx context.Context) error {
	_, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func wrapS3Error(op, key string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return fmt.Errorf("%s %s: %w", op, key, ErrPermission)
		}
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
