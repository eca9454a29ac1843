package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/geocube/interface/storage/gcs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// GSImageProvider implements ImageProvider for gs://bucket/object links
// The object may contain wildcards ("*", "?"): the first matching object is downloaded.
// If the link does not have an extension, it is considered as a directory and all its objects are downloaded.
type GSImageProvider struct {
	Concurrency int
}

// NewGSImageProvider creates a new ImageProvider for Google Storage
func NewGSImageProvider() *GSImageProvider {
	return &GSImageProvider{Concurrency: 5}
}

// Name implements ImageProvider
func (ip *GSImageProvider) Name() string {
	return "GoogleStorage"
}

// wildcardRegexp converts a blob pattern to a regexp, replacing "*" by ".*" and "?" by "."
func wildcardRegexp(blob string) (*regexp.Regexp, error) {
	blobRe := strings.ReplaceAll(strings.ReplaceAll(regexp.QuoteMeta(blob), "\\*", ".*"), "\\?", ".")
	re, err := regexp.Compile(blobRe)
	if err != nil {
		return nil, fmt.Errorf("compile[%s]: %w", blobRe, err)
	}
	return re, nil
}

func findBlob(ctx context.Context, url string) (string, error) {
	// Find the first blob that matches the url pattern
	bucket, blob, err := gcs.Parse(url)
	if err != nil {
		return "", err
	}
	gsClient, err := storage.NewClient(ctx)
	if err != nil {
		return "", err
	}
	defer gsClient.Close()
	re, err := wildcardRegexp(blob)
	if err != nil {
		return "", err
	}
	// Extract the prefix
	if i := strings.IndexAny(blob, "*?"); i != -1 {
		blob = blob[:i]
	}
	it := gsClient.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: blob})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", service.MakeTemporary(fmt.Errorf("list[%s/%s*]: %w", bucket, blob, err))
		}
		if idx := re.FindStringIndex(attrs.Name); idx != nil && idx[0] == 0 {
			return "gs://" + bucket + "/" + attrs.Name[:idx[1]], nil
		}
	}
	return url, ErrProductNotFound{url}
}

// Download implements ImageProvider
func (ip *GSImageProvider) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	url := archive.URL
	if strings.ContainsAny(url, "*?") {
		var err error
		if url, err = findBlob(ctx, url); err != nil {
			return "", fmt.Errorf("GSImageProvider: %w", err)
		}
	}
	url = strings.TrimSuffix(url, "/")
	if filepath.Ext(url) != "" {
		localFile := filepath.Join(localDir, filepath.Base(url))
		gs, err := gcs.NewGsStrategy(ctx)
		if err != nil {
			return "", fmt.Errorf("GSImageProvider.NewGsStrategy: %w", err)
		}
		if err := gs.DownloadToFile(ctx, url, localFile); err != nil {
			return "", service.MakeTemporary(fmt.Errorf("GSImageProvider[%s].%w", url, err))
		}
		return localFile, nil
	}

	dstDir := filepath.Join(localDir, filepath.Base(url))
	files, err := ip.downloadDirectory(ctx, url, dstDir)
	if err != nil {
		return "", fmt.Errorf("GSImageProvider[%s].%w", url, err)
	}
	if len(files) == 0 {
		return "", ErrProductNotFound{url}
	}
	return dstDir, nil
}

// downloadDirectory fetches all objects prefixed by uri to destination
// It returns the list of absolute filenames that were created (i.e with the destination prefix)
func (ip *GSImageProvider) downloadDirectory(ctx context.Context, uri string, dstDir string) (files []string, err error) {
	defer func() {
		if err != nil {
			err = service.MakeTemporary(err)
		}
	}()

	gs, err := gcs.NewGsStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	bucket, prefix, err := gcs.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	if len(bucket) == 0 {
		return nil, fmt.Errorf("downloadDirectory: missing bucket")
	}
	prefix = strings.TrimRight(prefix, "/") + "/"

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	defer client.Close()

	concurrency := ip.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	filemu := sync.Mutex{}

	q := &storage.Query{Prefix: prefix, Versions: false}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	it := client.Bucket(bucket).Objects(gctx, q)
	for {
		objectAttrs, iterr := it.Next()
		if iterr == iterator.Done {
			break
		}
		if iterr != nil {
			g.Wait()
			return nil, fmt.Errorf("bucket iterate: %w", iterr)
		}
		filename := strings.TrimPrefix(objectAttrs.Name, prefix)
		if filename == "" || strings.HasSuffix(filename, "/") {
			continue
		}
		file := filepath.Join(dstDir, filepath.FromSlash(filename))
		if err := os.MkdirAll(filepath.Dir(file), 0766); err != nil {
			g.Wait()
			return nil, fmt.Errorf("mkdirall %s: %w", filepath.Dir(file), err)
		}
		object := objectAttrs.Name
		g.Go(func() error {
			if err := gs.DownloadToFile(gctx, "gs://"+bucket+"/"+object, file); err != nil {
				return err
			}
			filemu.Lock()
			files = append(files, file)
			filemu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	return files, nil
}
