package service

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/mholt/archiver"
)

var zipMagics = [][]byte{[]byte("PK\x03\x04"), []byte("PK\x05\x06")}

// IsZip returns true if the file starts with a zip signature
func IsZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	for _, magic := range zipMagics {
		if bytes.Equal(header, magic) {
			return true
		}
	}
	return false
}

// VerifyZip reads every entry of the archive, checking their checksum.
// All errors are fatal: the archive is corrupted.
func VerifyZip(path string) error {
	if !IsZip(path) {
		return MakeFatal(fmt.Errorf("%s is not a zipfile", path))
	}
	zip := archiver.NewZip()
	if err := zip.Walk(path, func(f archiver.File) error {
		if f.IsDir() {
			return nil
		}
		if _, err := io.Copy(io.Discard, f); err != nil {
			return fmt.Errorf("%s: %w", f.Name(), err)
		}
		return nil
	}); err != nil {
		return MakeFatal(fmt.Errorf("%s is corrupt: %w", path, err))
	}
	return nil
}

// VerifyAndExtract verifies the archive and extracts it in a directory
// named after the archive (without the .zip extension). It returns the directory.
func VerifyAndExtract(ctx context.Context, path string) (string, error) {
	if err := VerifyZip(path); err != nil {
		return "", fmt.Errorf("VerifyAndExtract: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("VerifyAndExtract.Abs: %w", err)
	}
	unzipDir := strings.TrimSuffix(abs, filepath.Ext(abs))
	log.Logger(ctx).Sugar().Debugf("extracting %s to %s", path, unzipDir)
	zip := archiver.Zip{OverwriteExisting: true, MkdirAll: true}
	if err := zip.Unarchive(path, unzipDir); err != nil {
		return "", MakeTemporary(fmt.Errorf("VerifyAndExtract.Unarchive: %w", err))
	}
	return unzipDir, nil
}

// ExtractNested extracts the archive and all the archives it contains, recursively.
// It returns the list of the directories created.
func ExtractNested(ctx context.Context, path string) ([]string, error) {
	unzipDir, err := VerifyAndExtract(ctx, path)
	if err != nil {
		return nil, err
	}
	dirs := []string{unzipDir}
	var nested []string
	if err := filepath.Walk(unzipDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".zip") {
			nested = append(nested, p)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ExtractNested.Walk: %w", err)
	}
	sort.Strings(nested)
	for _, n := range nested {
		d, err := ExtractNested(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("ExtractNested[%s]: %w", filepath.Base(path), err)
		}
		dirs = append(dirs, d...)
	}
	return dirs, nil
}

// ZipDir archives the content of srcDir (not srcDir itself) in dst
func ZipDir(srcDir, dst string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("ZipDir.ReadDir: %w", err)
	}
	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, filepath.Join(srcDir, e.Name()))
	}
	if len(sources) == 0 {
		return MakeFatal(fmt.Errorf("ZipDir: %s is empty", srcDir))
	}
	zipper := archiver.NewZip()
	zipper.CompressionLevel = flate.BestSpeed
	zipper.OverwriteExisting = true
	if err := zipper.Archive(sources, dst); err != nil {
		return fmt.Errorf("ZipDir.Archive: %w", err)
	}
	return nil
}
