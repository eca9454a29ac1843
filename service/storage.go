package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/gammazero/workerpool"
)

// ErrFileNotFound is an error returned by ImportFile or DeleteProduct
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// Storage is a service to export product directories
type Storage interface {
	// SaveProduct uploads all the files of the local product directory under <storage>/<name>/ and returns the uri of the product
	SaveProduct(ctx context.Context, name, localdir string) (string, error)
	// ImportFile downloads <storage>/<name>/<file> to localdir
	// Raise ErrFileNotFound
	ImportFile(ctx context.Context, name, file, localdir string) error
	// DeleteProduct deletes the given files of the product
	DeleteProduct(ctx context.Context, name string, files []string) error
}

// StorageStrategy implements Storage using geocube.Strategy
type StorageStrategy struct {
	storage     storage.Strategy
	uri         uri.DefaultUri
	concurrency int
}

// NewStorageStrategy creates a new StorageStrategy, uploading <concurrency> files in parallel
func NewStorageStrategy(ctx context.Context, storageURI string, concurrency int) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	return &StorageStrategy{storage: storageClient, uri: uri, concurrency: concurrency}, nil
}

// listFiles returns the paths (relative to dir) of all the regular files of dir
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// SaveProduct implements Storage
func (ss *StorageStrategy) SaveProduct(ctx context.Context, name, localdir string) (string, error) {
	files, err := listFiles(localdir)
	if err != nil {
		return "", fmt.Errorf("SaveProduct.List: %w", err)
	}
	if len(files) == 0 {
		return "", MakeFatal(fmt.Errorf("SaveProduct: %s is empty", localdir))
	}

	var (
		mu       sync.Mutex
		uploaded []string
		uerr     error
	)
	wp := workerpool.New(ss.concurrency)
	for _, file := range files {
		file := file
		wp.Submit(func() {
			mu.Lock()
			failed := uerr != nil
			mu.Unlock()
			if failed || ctx.Err() != nil {
				return
			}
			err := ss.uploadFile(ctx, filepath.Join(localdir, filepath.FromSlash(file)), ss.getPath(name, file))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if uerr == nil {
					uerr = err
				}
				return
			}
			uploaded = append(uploaded, file)
		})
	}
	wp.StopWait()
	if uerr == nil && ctx.Err() != nil {
		uerr = ctx.Err()
	}

	if uerr != nil {
		if err := ss.DeleteProduct(ctx, name, uploaded); err != nil {
			log.Logger(ctx).Sugar().Warnf("SaveProduct: failed to clean %d uploaded files: %v", len(uploaded), err)
		}
		return "", fmt.Errorf("SaveProduct[%s].%w", name, uerr)
	}
	log.Logger(ctx).Sugar().Infof("%d files of %s exported to %s", len(files), name, ss.getPath(name, ""))
	return ss.getPath(name, ""), nil
}

func (ss *StorageStrategy) uploadFile(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("Open: %w", err)
	}
	defer f.Close()
	if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
		return MakeTemporary(fmt.Errorf("UploadFile to %s: %w", dst, err))
	}
	return nil
}

// ImportFile implements Storage
func (ss *StorageStrategy) ImportFile(ctx context.Context, name, file, localdir string) error {
	srcFile := ss.getPath(name, file)
	dstFile := filepath.Join(localdir, filepath.Base(file))
	if err := ss.storage.DownloadToFile(ctx, srcFile, dstFile); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{srcFile}
		}
		return fmt.Errorf("ImportFile.DownloadToFile from %s: %w", srcFile, err)
	}
	return nil
}

// DeleteProduct implements Storage
func (ss *StorageStrategy) DeleteProduct(ctx context.Context, name string, files []string) error {
	var err error
	for _, f := range files {
		file := ss.getPath(name, f)
		if e := ss.storage.Delete(ctx, file); e != nil && !isErrNotFound(e) {
			err = MergeErrors(true, err, fmt.Errorf("DeleteProduct.Delete[%s]: %w", file, e))
		}
	}
	return err
}

// getPath returns the uri of the file of the product
func (ss *StorageStrategy) getPath(name, file string) string {
	u := ss.uri.String()
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u + path.Join(name, file)
}
