package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"filekeeper/internal/storage"
)

const (
	defaultTimeout  = 30 * time.Second
	deleteBatchSize = 1000
)

// Client stores content as objects in an S3-compatible bucket. A directory is
// the set of keys sharing its prefix, so moving a directory copies and then
// deletes every key below it.
type Client struct {
	api    API
	bucket string
	prefix string
	log    *zap.Logger
}

var _ storage.Backend = (*Client)(nil)

// NewClient builds the S3 client and checks that the bucket is reachable.
func NewClient(conf *Config, log *zap.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("missing required configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	opts := s3.Options{
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     conf.UsePathStyle,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}

	c := NewWithAPI(s3.New(opts), conf.Bucket, conf.Prefix, log)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(conf.Bucket)}); err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return c, nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, bucket, prefix string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log.Named("s3"),
	}
}

func (c *Client) key(p string) string {
	p = strings.Trim(p, "/")
	if c.prefix == "" {
		return p
	}
	if p == "" {
		return c.prefix
	}
	return c.prefix + "/" + p
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// listKeys returns every object key equal to key or below key+"/".
func (c *Client) listKeys(ctx context.Context, key string) ([]types.Object, error) {
	var objects []types.Object

	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		objects = append(objects, types.Object{
			Key:          aws.String(key),
			Size:         head.ContentLength,
			LastModified: head.LastModified,
		})
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to check object existence: %w", err)
	}

	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(key + "/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", key, err)
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

func (c *Client) Stat(ctx context.Context, path string) (storage.Entry, error) {
	key := c.key(path)
	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		e := storage.Entry{Path: path, Size: aws.ToInt64(head.ContentLength)}
		if head.LastModified != nil {
			e.ModTime = *head.LastModified
		}
		return e, nil
	}
	if !isNotFound(err) {
		return storage.Entry{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return storage.Entry{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if len(out.Contents) == 0 {
		return storage.Entry{}, fmt.Errorf("%w: %s", storage.ErrNotExist, path)
	}
	return storage.Entry{Path: path, IsDir: true}, nil
}

func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.Stat(ctx, path)
	if errors.Is(err, storage.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) Move(ctx context.Context, src, dst string) error {
	srcKey, dstKey := c.key(src), c.key(dst)

	objects, err := c.listKeys(ctx, srcKey)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, src)
	}
	occupied, err := c.Exists(ctx, dst)
	if err != nil {
		return err
	}
	if occupied {
		return fmt.Errorf("%w: %s", storage.ErrExist, dst)
	}

	// Copy everything first so a failure leaves the source intact.
	for _, obj := range objects {
		from := aws.ToString(obj.Key)
		to := dstKey + strings.TrimPrefix(from, srcKey)
		_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(c.bucket),
			CopySource: aws.String(c.bucket + "/" + url.PathEscape(from)),
			Key:        aws.String(to),
		})
		if err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", from, to, err)
		}
	}

	if err := c.deleteObjects(ctx, objects); err != nil {
		c.log.Warn("source objects left behind after move",
			zap.String("src", src), zap.String("dst", dst), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) deleteObjects(ctx context.Context, objects []types.Object) error {
	for start := 0; start < len(objects); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(objects))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects from S3: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to delete %d objects, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return nil
}

func (c *Client) RemoveAll(ctx context.Context, path string) error {
	if strings.Trim(path, "/") == "" {
		return fmt.Errorf("refusing to remove storage root")
	}
	objects, err := c.listKeys(ctx, c.key(path))
	if err != nil {
		return err
	}
	return c.deleteObjects(ctx, objects)
}

func (c *Client) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotExist, path)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return out.Body, nil
}

func (c *Client) Walk(ctx context.Context, root string, fn storage.WalkFunc) error {
	rootKey := c.key(root)
	objects, err := c.listKeys(ctx, rootKey)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, root)
	}
	for _, obj := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(aws.ToString(obj.Key), rootKey), "/")
		e := storage.Entry{
			Path: strings.Trim(root+"/"+rel, "/"),
			Size: aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			e.ModTime = *obj.LastModified
		}
		if err := fn(rel, e); err != nil {
			return err
		}
	}
	return nil
}
