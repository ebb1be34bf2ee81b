package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/princinho/agrorfq/models"
	"google.golang.org/api/option"
)

// Uploader stores offer attachments in an object store.
type Uploader interface {
	Upload(ctx context.Context, objectName, contentType string, body io.Reader) (publicURL string, err error)
	Delete(ctx context.Context, objectName string) error
}

// ====== Cloudflare R2 ====

type R2Uploader struct {
	client       *s3.Client
	bucket       string
	publicDomain string
}

// NewR2Uploader talks to R2 through its S3-compatible API.
// endpoint looks like https://<account-id>.r2.cloudflarestorage.com.
func NewR2Uploader(ctx context.Context, bucket, accessKey, secretKey, endpoint, publicDomain string) (*R2Uploader, error) {
	if bucket == "" || accessKey == "" || secretKey == "" || endpoint == "" {
		return nil, fmt.Errorf("missing R2 settings (R2_BUCKET, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_ENDPOINT)")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Uploader{
		client:       client,
		bucket:       bucket,
		publicDomain: strings.TrimRight(publicDomain, "/"),
	}, nil
}

func (u *R2Uploader) Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(objectName),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("r2 put %s: %w", objectName, err)
	}
	return fmt.Sprintf("%s/%s/%s", u.publicDomain, u.bucket, objectName), nil
}

func (u *R2Uploader) Delete(ctx context.Context, objectName string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(objectName),
	})
	return err
}

// ====== Google Cloud Storage ====

type GCSUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket, credentialsFile string) (*GCSUploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("missing GCS_BUCKET")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, objectName, contentType string, body io.Reader) (string, error) {
	// Object names carry a uuid, so a pre-existing object means a collision.
	w := u.client.Bucket(u.bucket).Object(objectName).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload copy: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload close: %w", err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectName), nil
}

func (u *GCSUploader) Delete(ctx context.Context, objectName string) error {
	err := u.client.Bucket(u.bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (u *GCSUploader) Close() error { return u.client.Close() }

// ====== Offer attachments ====

// UploadOfferAttachment stores one validated file under the request's folder.
func UploadOfferAttachment(
	ctx context.Context,
	up Uploader,
	requestID string,
	kind string,
	fileHeader *multipart.FileHeader,
	mimeType string,
) (*models.Attachment, error) {
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if mimeType == "" {
		mimeType = mime.TypeByExtension(ext)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	now := time.Now().UTC()
	objectName := fmt.Sprintf("rfq/%s/offers/%s/%d-%s%s", requestID, kind, now.Unix(), uuid.NewString(), ext)

	url, err := up.Upload(ctx, objectName, mimeType, file)
	if err != nil {
		return nil, err
	}

	return &models.Attachment{
		PublicURL:  url,
		ObjectName: objectName,
		MimeType:   mimeType,
		SizeBytes:  fileHeader.Size,
		FileName:   fileHeader.Filename,
		UploadedAt: now,
	}, nil
}

// DeleteAttachments removes every object, returning the first failure.
func DeleteAttachments(ctx context.Context, up Uploader, attachments []models.Attachment) error {
	var firstErr error
	for _, a := range attachments {
		if a.ObjectName == "" {
			continue
		}
		if err := up.Delete(ctx, a.ObjectName); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete %s: %w", a.ObjectName, err)
		}
	}
	return firstErr
}
