package provider

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	osioS3 "github.com/airbusgeo/osio/s3"
	"github.com/cavaliercoder/grab"
)

// URLImageProvider implements ImageProvider for direct download links.
// The download is delegated according to the scheme of the link: http(s), gs, s3, ftp or file (local path)
type URLImageProvider struct {
	HTTPClient *http.Client
	GS         *GSImageProvider
	S3         *S3ImageProvider
	FTP        *FTPImageProvider
}

// Name implements ImageProvider
func (ip *URLImageProvider) Name() string {
	return "URL"
}

// NewURLImageProvider creates a new ImageProvider for direct download links
func NewURLImageProvider() *URLImageProvider {
	return &URLImageProvider{
		HTTPClient: &http.Client{},
		GS:         NewGSImageProvider(),
		S3:         NewS3ImageProvider("", "", ""),
		FTP:        NewFTPImageProvider(Credentials{}),
	}
}

// Download implements ImageProvider
func (ip *URLImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	link := archive.URL
	if link == "" {
		return "", service.MakeFatal(fmt.Errorf("URLImageProvider: missing url"))
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", service.MakeFatal(fmt.Errorf("URLImageProvider: %w", err))
	}
	log.Logger(ctx).Sugar().Infof("downloading %s", link)

	switch u.Scheme {
	case "http", "https":
		return ip.downloadHTTP(ctx, link, archive.Name, localDir)
	case "gs":
		return ip.GS.Download(ctx, archive, localDir)
	case "s3":
		return ip.S3.Download(ctx, archive, localDir)
	case "ftp":
		return ip.FTP.Download(ctx, archive, localDir)
	case "file", "":
		src := link
		if u.Scheme == "file" {
			src = u.Path
		}
		localFile := filepath.Join(localDir, filepath.Base(src))
		if service.FileSize(src) < 0 {
			return "", ErrProductNotFound{src}
		}
		if err := service.CopyFile(src, localFile); err != nil {
			return "", fmt.Errorf("URLImageProvider: %w", err)
		}
		return localFile, nil
	}
	return "", service.MakeFatal(fmt.Errorf("URLImageProvider: unsupported scheme %s", u.Scheme))
}

func (ip *URLImageProvider) downloadHTTP(ctx context.Context, link, name, localDir string) (string, error) {
	req, err := grab.NewRequest(localDir, link)
	if err != nil {
		return "", service.MakeFatal(fmt.Errorf("URLImageProvider: %w", err))
	}
	req.NoResume = true
	// grab names the file after Content-Disposition or the url
	localFile, err := download(ctx, ip.HTTPClient, req, "URL "+path.Base(link), true)
	if err != nil {
		return "", fmt.Errorf("URLImageProvider: %w", err)
	}
	if name != "" && filepath.Base(localFile) != name && filepath.Ext(name) == filepath.Ext(localFile) {
		renamed := filepath.Join(localDir, name)
		if err := service.MoveFile(localFile, renamed); err != nil {
			return "", fmt.Errorf("URLImageProvider: %w", err)
		}
		localFile = renamed
	}
	return localFile, nil
}

var imgRegexp = regexp.MustCompile(`(^|/)IMG-[A-Z]{2}-ALOS2[^/]*$`)

// ProbeArchive lists the ALOS2 image files (IMG-*) of a remote zip archive (gs:// or s3://) without downloading it
func ProbeArchive(ctx context.Context, link string) ([]string, error) {
	u, err := uri.ParseUri(link)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("ProbeArchive: %w", err))
	}
	var handler osio.KeyStreamerAt
	switch u.Protocol() {
	case "gs":
		if handler, err = osioGcs.Handle(ctx); err != nil {
			return nil, fmt.Errorf("ProbeArchive.GSHandle: %w", err)
		}
	case "s3":
		if handler, err = osioS3.Handle(ctx); err != nil {
			return nil, fmt.Errorf("ProbeArchive.S3Handle: %w", err)
		}
	default:
		return nil, service.MakeFatal(fmt.Errorf("ProbeArchive: unsupported protocol %s", u.Protocol()))
	}
	adapter, err := osio.NewAdapter(handler)
	if err != nil {
		return nil, fmt.Errorf("ProbeArchive.NewAdapter: %w", err)
	}
	obj, err := adapter.Reader(path.Join(u.Bucket(), u.Path()))
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("ProbeArchive.Reader: %w", err))
	}
	zipf, err := zip.NewReader(obj, obj.Size())
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("ProbeArchive.zip: %w", err))
	}
	return imageFiles(zipf), nil
}

func imageFiles(zipf *zip.Reader) []string {
	var images []string
	for _, f := range zipf.File {
		if imgRegexp.MatchString(strings.TrimSuffix(f.Name, "/")) {
			images = append(images, path.Base(f.Name))
		}
	}
	return images
}

// ProbeDatasetNames returns the names of the datasets of a remote zip archive
func ProbeDatasetNames(ctx context.Context, link string) ([]string, error) {
	images, err := ProbeArchive(ctx, link)
	if err != nil {
		return nil, err
	}
	set := service.StringSet{}
	for _, img := range images {
		if name, err := common.ExtractDatasetName(img); err == nil {
			set.Push(name)
		}
	}
	return set.Slice(), nil
}
