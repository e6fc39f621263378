// README: S3 uploader for service-order attachments.
package attachments

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "primetransportes/internal/config"
)

type Uploader struct {
	client *s3.Client
	bucket string
	region string
}

func NewUploader(ctx context.Context, cfg appconfig.S3Config) (*Uploader, error) {
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Uploader{
		client: s3.NewFromConfig(sdkCfg),
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// Upload stores one attachment under a collision-free key and returns its URL.
// Callers treat failures as per-file: an error here never aborts the ride
// mutation that carries the attachment.
func (u *Uploader) Upload(ctx context.Context, nome string, conteudo io.Reader) (string, error) {
	key := path.Join("anexos", uuid.NewString()+"-"+nome)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   conteudo,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", nome, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), nil
}
