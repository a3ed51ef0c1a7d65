package offchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/moortools/moorage/moapi"
)

// S3 serves the "s3" scheme.  URIs have the form "s3://bucket/key".
// Uploads go to a configured bucket under a generated key.
type S3 struct {
	client *s3.Client
	cfg    S3Config
}

type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint, for S3-compatible stores.
	Endpoint string
	// UploadBucket receives documents stored through Upload.
	UploadBucket string
	// UploadPrefix is prepended to generated upload keys.
	UploadPrefix string
}

var _ Adapter = (*S3)(nil)

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
					SigningRegion:     cfg.Region,
				}, nil
			})))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, moapi.ErrorInvalid(fmt.Sprintf("could not load AWS configuration: %s", err))
	}
	return &S3{
		client: s3.NewFromConfig(awsCfg),
		cfg:    cfg,
	}, nil
}

func splitBucketKey(uri moapi.URI) (bucket, key string, err error) {
	bucket, key, found := strings.Cut(uri.Locator(), "/")
	if !found || bucket == "" || key == "" {
		return "", "", moapi.ErrorRemoteRead(string(uri),
			fmt.Errorf("s3 URIs must have the form s3://bucket/key"))
	}
	return bucket, key, nil
}

// Download implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-read -- on a malformed s3 URI, a missing
//      object, any transport failure, or a parse failure
func (a *S3) Download(ctx context.Context, uri moapi.URI) (moapi.Document, error) {
	bucket, key, err := splitBucketKey(uri)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var responseError *awshttp.ResponseError
		if errors.As(err, &responseError) && responseError.ResponseError.HTTPStatusCode() == http.StatusNotFound {
			return nil, moapi.ErrorRemoteRead(string(uri), fmt.Errorf("no object stored at this address"))
		}
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentSize))
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	doc, err := moapi.DecodeDocument(raw)
	if err != nil {
		return nil, moapi.ErrorRemoteRead(string(uri), err)
	}
	return doc, nil
}

// Upload implements Adapter.
//
// Errors:
//
//    - moorage-error-remote-write -- when no upload bucket is configured,
//      on a serialization failure, or on any transport failure
func (a *S3) Upload(ctx context.Context, doc moapi.Document) (moapi.URI, error) {
	if a.cfg.UploadBucket == "" {
		return "", moapi.ErrorRemoteWrite("s3",
			fmt.Errorf("no upload bucket configured"))
	}
	raw, err := moapi.EncodeDocument(doc)
	if err != nil {
		return "", moapi.ErrorRemoteWrite("s3", err)
	}
	key := a.cfg.UploadPrefix + uuid.New().String() + ".json"
	uploader := manager.NewUploader(a.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.UploadBucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return "", moapi.ErrorRemoteWrite("s3", err)
	}
	return moapi.URI(fmt.Sprintf("s3://%s/%s", a.cfg.UploadBucket, key)), nil
}
