package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ImageProvider implements ImageProvider for s3://bucket/key links
// If the key ends with "/", all the objects of the prefix are downloaded.
type S3ImageProvider struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	RequestPayer    bool
}

// NewS3ImageProvider creates a new ImageProvider for S3. If the access key is empty, the default credentials chain is used.
func NewS3ImageProvider(accessKeyID, secretAccessKey, region string) *S3ImageProvider {
	return &S3ImageProvider{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey, Region: region}
}

// Name implements ImageProvider
func (ip *S3ImageProvider) Name() string {
	return "S3"
}

// ParseS3URL returns the bucket and the key of a s3://bucket/key url
func ParseS3URL(link string) (string, string, error) {
	if !strings.HasPrefix(link, "s3://") {
		return "", "", fmt.Errorf("not a s3 url: %s", link)
	}
	parts := strings.SplitN(strings.TrimPrefix(link, "s3://"), "/", 2)
	if parts[0] == "" || len(parts) == 1 || parts[1] == "" {
		return "", "", fmt.Errorf("missing bucket or key: %s", link)
	}
	return parts[0], parts[1], nil
}

func (ip *S3ImageProvider) client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if ip.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.AccessKeyID, ip.SecretAccessKey, "")))
	}
	if ip.Region != "" {
		opts = append(opts, config.WithRegion(ip.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("config.LoadDefaultConfig: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Download implements ImageProvider
func (ip *S3ImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	bucket, key, err := ParseS3URL(archive.URL)
	if err != nil {
		return "", service.MakeFatal(fmt.Errorf("S3ImageProvider: %w", err))
	}
	client, err := ip.client(ctx)
	if err != nil {
		return "", fmt.Errorf("S3ImageProvider: %w", err)
	}
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})

	if !strings.HasSuffix(key, "/") {
		localFile := filepath.Join(localDir, filepath.Base(key))
		if err := ip.downloadObject(ctx, downloader, bucket, key, localFile); err != nil {
			return "", fmt.Errorf("S3ImageProvider.%w", err)
		}
		return localFile, nil
	}

	productDir := filepath.Join(localDir, filepath.Base(strings.TrimSuffix(key, "/")))
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket:       aws.String(bucket),
		Prefix:       aws.String(key),
		RequestPayer: ip.requestPayer(),
	})
	n := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", service.MakeTemporary(fmt.Errorf("S3ImageProvider.NextPage: %w", err))
		}
		for _, object := range page.Contents {
			objectKey := aws.ToString(object.Key)
			if strings.HasSuffix(objectKey, "/") {
				continue
			}
			localFile := filepath.Join(productDir, filepath.FromSlash(strings.TrimPrefix(objectKey, key)))
			if err := ip.downloadObject(ctx, downloader, bucket, objectKey, localFile); err != nil {
				return "", fmt.Errorf("S3ImageProvider.%w", err)
			}
			n++
		}
	}
	if n == 0 {
		return "", ErrProductNotFound{archive.URL}
	}
	log.Logger(ctx).Sugar().Debugf("%d objects downloaded from %s", n, archive.URL)
	return productDir, nil
}

func (ip *S3ImageProvider) requestPayer() types.RequestPayer {
	if ip.RequestPayer {
		return types.RequestPayerRequester
	}
	return ""
}

func (ip *S3ImageProvider) downloadObject(ctx context.Context, downloader *manager.Downloader, bucket, key, localFile string) error {
	if err := os.MkdirAll(filepath.Dir(localFile), 0755); err != nil {
		return fmt.Errorf("downloadObject: %w", err)
	}
	file, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("downloadObject: failed to create file %s: %w", localFile, err)
	}
	defer file.Close()

	if _, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		RequestPayer: ip.requestPayer(),
	}); err != nil {
		os.Remove(localFile)
		return service.MakeTemporary(fmt.Errorf("downloadObject: failed to download object %s:%s: %w", bucket, key, err))
	}
	return nil
}
